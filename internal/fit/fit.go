// Package fit runs the external resonator fit on saved traces and reads and
// writes fit-result files, one key<TAB>value pair per line.
package fit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/tracefile"
	"github.com/RMahshie/resonara/pkg/models"
)

// DefaultExtension of fit-result files.
const DefaultExtension = ".fit"

// Fitter fits the trace saved at path, given without extension.
type Fitter interface {
	Fit(ctx context.Context, path string) (models.FitRecord, error)
}

// Func adapts a function to Fitter.
type Func func(ctx context.Context, path string) (models.FitRecord, error)

func (f Func) Fit(ctx context.Context, path string) (models.FitRecord, error) { return f(ctx, path) }

// CommandFitter runs "<Command> <Script> <path>.txt <path><Extension>" and
// reads back the fit-result file the command writes.
type CommandFitter struct {
	Command   string
	Script    string
	Extension string
}

// NewCommandFitter returns a fitter invoking script with command.
func NewCommandFitter(command, script, extension string) *CommandFitter {
	if extension == "" {
		extension = DefaultExtension
	}
	return &CommandFitter{Command: command, Script: script, Extension: extension}
}

func (f *CommandFitter) Fit(ctx context.Context, path string) (models.FitRecord, error) {
	out := path + f.Extension
	var args []string
	if f.Script != "" {
		args = append(args, f.Script)
	}
	args = append(args, path+tracefile.TextExt, out)

	cmd := exec.CommandContext(ctx, f.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("fit command failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	log.Debug().Str("path", path).Str("output", strings.TrimSpace(string(output))).Msg("Fit command finished")

	rec, err := ReadRecord(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read fit result: %w", err)
	}
	return rec, nil
}

// ReadRecord loads a fit-result file.
func ReadRecord(path string) (models.FitRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := ParseRecord(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// ParseRecord reads key<TAB>value lines. Blank lines are ignored.
func ParseRecord(r io.Reader) (models.FitRecord, error) {
	rec := models.FitRecord{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key<TAB>value", n)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		rec[strings.TrimSpace(key)] = v
	}
	return rec, sc.Err()
}

// WriteRecord writes rec with keys in lexical order.
func WriteRecord(path string, rec models.FitRecord) error {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\t')
		b.WriteString(strconv.FormatFloat(rec[k], 'g', -1, 64))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
