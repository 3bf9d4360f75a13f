package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"
	"github.com/rs/zerolog/log"
)

// Prologix is a SCPI connection through a Prologix GPIB-USB controller on a
// virtual serial port. The controller's own read timeout applies; context
// cancellation is only checked before each exchange.
type Prologix struct {
	mu   sync.Mutex
	port io.Closer
	gpib *prologix.Controller
}

// OpenPrologix opens the serial port and addresses the instrument at
// gpibAddr.
func OpenPrologix(serialPort string, gpibAddr int) (*Prologix, error) {
	port, err := vcp.NewVCP(serialPort)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", serialPort, err)
	}
	gpib, err := prologix.NewController(port, gpibAddr, false)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to create GPIB controller: %w", err)
	}
	log.Info().Str("port", serialPort).Int("gpib_address", gpibAddr).Msg("Prologix controller ready")
	return &Prologix{port: port, gpib: gpib}, nil
}

// Write sends a command that produces no response.
func (p *Prologix) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.gpib.Command("%s", cmd); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Query sends cmd and returns the instrument's response. An EOF that
// arrives together with data ends the response normally.
func (p *Prologix) Query(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, err := p.gpib.Query(cmd)
	if err != nil && !(errors.Is(err, io.EOF) && resp != "") {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	return strings.TrimSpace(resp), nil
}

// Close releases the serial port.
func (p *Prologix) Close() error {
	return p.port.Close()
}
