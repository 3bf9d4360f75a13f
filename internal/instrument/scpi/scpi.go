// Package scpi drives Keysight PNA and Rohde & Schwarz ZVA network
// analyzers over any line-oriented SCPI connection.
package scpi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/instrument"
	"github.com/RMahshie/resonara/pkg/measerr"
)

// Conn is a SCPI command channel.
type Conn interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
}

// Dialect captures the command differences between analyzer families.
type Dialect struct {
	Name string
	// BandwidthCmd is a format taking the channel and the bandwidth.
	BandwidthCmd string
	// AlwaysSetAverageCount writes the average count even when averaging
	// is disabled.
	AlwaysSetAverageCount bool
}

var (
	PNA = Dialect{Name: "pna", BandwidthCmd: "SENSe%d:BANDwidth:RESolution %s"}
	ZVA = Dialect{Name: "zva", BandwidthCmd: "SENS%d:BWID:RES %s", AlwaysSetAverageCount: true}
)

// DialectByName looks up a dialect, case-insensitively.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case PNA.Name:
		return PNA, nil
	case ZVA.Name:
		return ZVA, nil
	}
	return Dialect{}, measerr.Configuration("unknown SCPI dialect %q", name)
}

// VNA implements instrument.Driver on top of a SCPI connection.
type VNA struct {
	conn    Conn
	dialect Dialect
	channel int
}

// New returns a driver speaking dialect on the given measurement channel.
func New(conn Conn, dialect Dialect, channel int) *VNA {
	if channel < 1 {
		channel = 1
	}
	return &VNA{conn: conn, dialect: dialect, channel: channel}
}

func (v *VNA) write(ctx context.Context, op, format string, args ...any) error {
	return measerr.Communication(op, v.conn.Write(ctx, fmt.Sprintf(format, args...)))
}

func (v *VNA) query(ctx context.Context, op, cmd string) (string, error) {
	resp, err := v.conn.Query(ctx, cmd)
	if err != nil {
		return "", measerr.Communication(op, err)
	}
	return strings.TrimSpace(resp), nil
}

// Identify returns the *IDN? response.
func (v *VNA) Identify(ctx context.Context) (string, error) {
	return v.query(ctx, "identify", "*IDN?")
}

func (v *VNA) Configure(ctx context.Context, cfg instrument.SweepConfig) (instrument.SweepConfig, error) {
	if err := cfg.Validate(); err != nil {
		return instrument.SweepConfig{}, err
	}
	ch := v.channel
	cmds := []string{
		fmt.Sprintf(":SOURce%d:POWer %s", ch, formatValue(cfg.Power)),
		fmt.Sprintf(v.dialect.BandwidthCmd, ch, formatValue(cfg.Bandwidth)),
		fmt.Sprintf(":SENSe%d:SWEep:POINts %d", ch, cfg.Points),
		fmt.Sprintf(":SENSe%d:FREQuency:STARt %.3f", ch, cfg.Start),
		fmt.Sprintf(":SENSe%d:FREQuency:STOP %.3f", ch, cfg.Stop),
	}
	if cfg.Averages > 1 {
		cmds = append(cmds,
			fmt.Sprintf("SENSe%d:AVERage:STATe ON", ch),
			fmt.Sprintf("SENSe%d:AVERage:COUNt %d", ch, cfg.Averages))
	} else {
		cmds = append(cmds, fmt.Sprintf("SENSe%d:AVERage:STATe OFF", ch))
		if v.dialect.AlwaysSetAverageCount {
			cmds = append(cmds, fmt.Sprintf("SENSe%d:AVERage:COUNt 1", ch))
		}
	}
	// report operation complete in bit 0 of the event status register
	cmds = append(cmds, "*ESE 1")

	for _, cmd := range cmds {
		if err := v.write(ctx, "configure", "%s", cmd); err != nil {
			return instrument.SweepConfig{}, err
		}
	}
	log.Debug().Str("dialect", v.dialect.Name).Int("channel", ch).
		Float64("start", cfg.Start).Float64("stop", cfg.Stop).Int("points", cfg.Points).
		Msg("VNA configured")
	return cfg, nil
}

func (v *VNA) SetContinuous(ctx context.Context, on bool) error {
	return v.write(ctx, "set continuous", "INIT:CONT %s", onOff(on))
}

func (v *VNA) SetOutput(ctx context.Context, on bool) error {
	return v.write(ctx, "set output", "OUTPut:STATe %s", onOff(on))
}

func (v *VNA) Trigger(ctx context.Context) error {
	return v.write(ctx, "trigger", "*CLS;INIT:IMM;*OPC")
}

func (v *VNA) OperationComplete(ctx context.Context) (bool, error) {
	resp, err := v.query(ctx, "poll completion", "*ESR?")
	if err != nil {
		return false, err
	}
	esr, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return false, measerr.Communication("poll completion", fmt.Errorf("malformed *ESR? response %q", resp))
	}
	return int(esr)&1 == 1, nil
}

func (v *VNA) WaitComplete(ctx context.Context) error {
	_, err := v.query(ctx, "wait complete", "*OPC?")
	return err
}

func (v *VNA) ReadRawSamples(ctx context.Context) ([]float64, error) {
	resp, err := v.query(ctx, "read data", fmt.Sprintf("CALCulate%d:DATA? SDATa", v.channel))
	if err != nil {
		return nil, err
	}
	if resp == "" {
		return nil, nil
	}
	fields := strings.Split(resp, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, measerr.Communication("read data", fmt.Errorf("malformed sample %d: %w", i, err))
		}
		out[i] = x
	}
	return out, nil
}

func (v *VNA) SweepDuration(ctx context.Context) (time.Duration, error) {
	resp, err := v.query(ctx, "sweep time", fmt.Sprintf(":SENSe%d:SWEep:TIME?", v.channel))
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, measerr.Communication("sweep time", fmt.Errorf("malformed sweep time %q", resp))
	}
	return time.Duration(s * float64(time.Second)), nil
}

// Timeout returns the I/O timeout of the connection, or zero if it has none.
func (v *VNA) Timeout() time.Duration {
	if ta, ok := v.conn.(instrument.TimeoutAdjuster); ok {
		return ta.Timeout()
	}
	return 0
}

// SetTimeout changes the connection I/O timeout when supported.
func (v *VNA) SetTimeout(d time.Duration) {
	if ta, ok := v.conn.(instrument.TimeoutAdjuster); ok {
		ta.SetTimeout(d)
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var (
	_ instrument.Driver          = (*VNA)(nil)
	_ instrument.TimeoutAdjuster = (*VNA)(nil)
)
