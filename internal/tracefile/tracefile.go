// Package tracefile persists filled traces as a re-loadable binary blob and
// a tab-separated text file, never overwriting an earlier result.
package tracefile

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

// Artifact extensions. Save returns paths without them.
const (
	BlobExt = ".gob"
	TextExt = ".txt"
)

// Name derives the deterministic base name of a trace from its span, point
// count, bandwidth, power and, when averaged, the average count.
func Name(t *models.Trace) string {
	name := fmt.Sprintf("measurement_%.2f-%.2fGHz_nop%d_bw%s_%sdBm",
		t.Start()/1e9, t.Stop()/1e9, t.Points(), formatNumber(t.Bandwidth), formatNumber(t.Power))
	if t.Averages > 1 {
		name += fmt.Sprintf("_%davgs", t.Averages)
	}
	return name
}

// Dir resolves the directory a trace is saved to under basePath.
func Dir(t *models.Trace, basePath string) string {
	return filepath.Join(basePath, t.Operator, t.Chip, t.SubPath)
}

// Rel returns path relative to basePath. A path that is not below basePath
// fails with a validation error.
func Rel(basePath, path string) (string, error) {
	rel, err := filepath.Rel(basePath, path)
	if err != nil {
		return "", measerr.Validation("%s is not below %s: %v", path, basePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", measerr.Validation("%s is outside %s", path, basePath)
	}
	return rel, nil
}

// CheckDir fails with a validation error when the operator, chip or sub
// path of t would place it outside basePath.
func CheckDir(t *models.Trace, basePath string) error {
	_, err := Rel(basePath, Dir(t, basePath))
	return err
}

// Save writes the blob and then the text artifact of t below basePath and
// returns the common path without extension. If either artifact name is
// taken, the lowest free _v2, _v3, ... suffix is used. Version probing is
// not atomic; concurrent savers of the same configuration are not supported.
func Save(t *models.Trace, basePath string) (string, error) {
	if len(t.Data()) != len(t.Frequencies) {
		return "", measerr.Validation("frequency and data size do not match: %d != %d", len(t.Frequencies), len(t.Data()))
	}
	if err := CheckDir(t, basePath); err != nil {
		return "", err
	}

	dir := Dir(t, basePath)
	name := Name(t)
	path := filepath.Join(dir, name)
	for v := 2; ; v++ {
		taken, err := anyExists(path+BlobExt, path+TextExt)
		if err != nil {
			return "", fmt.Errorf("failed to probe %s: %w", path, err)
		}
		if !taken {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_v%d", name, v))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := writeArtifacts(path, t); err != nil {
		return "", err
	}

	log.Debug().Str("path", path).Int("points", t.Points()).Msg("Trace saved")
	return path, nil
}

// writeArtifacts writes both artifacts at path, removing the blob again if
// the text artifact cannot be written.
func writeArtifacts(path string, t *models.Trace) error {
	if err := writeBlob(path+BlobExt, t); err != nil {
		return err
	}
	if err := writeText(path+TextExt, t); err != nil {
		if rmErr := os.Remove(path + BlobExt); rmErr != nil {
			log.Error().Err(rmErr).Str("path", path+BlobExt).Msg("Failed to remove blob of incomplete save")
		}
		return err
	}
	return nil
}

func anyExists(paths ...string) (bool, error) {
	for _, p := range paths {
		exists, err := fileExists(p)
		if err != nil || exists {
			return exists, err
		}
	}
	return false, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func createExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

// blob is the gob layout of a saved trace.
type blob struct {
	Operator    string
	Chip        string
	SubPath     string
	Bandwidth   float64
	Power       float64
	Averages    int
	Kind        string
	Comment     string
	Frequencies []float64
	Data        []complex128
}

func writeBlob(path string, t *models.Trace) error {
	f, err := createExclusive(path)
	if err != nil {
		return err
	}
	b := blob{
		Operator:    t.Operator,
		Chip:        t.Chip,
		SubPath:     t.SubPath,
		Bandwidth:   t.Bandwidth,
		Power:       t.Power,
		Averages:    t.Averages,
		Kind:        t.Kind,
		Comment:     t.Comment,
		Frequencies: t.Frequencies,
		Data:        t.Data(),
	}
	if err := gob.NewEncoder(f).Encode(&b); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func writeText(path string, t *models.Trace) error {
	f, err := createExclusive(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if t.Comment != "" {
		for _, line := range strings.Split(strings.TrimRight(t.Comment, "\n"), "\n") {
			fmt.Fprintf(w, "# %s\n", strings.TrimRight(line, "\r"))
		}
	}
	data := t.Data()
	for i, freq := range t.Frequencies {
		w.WriteString(formatNumber(freq))
		w.WriteByte('\t')
		w.WriteString(strconv.FormatComplex(data[i], 'g', -1, 128))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// LoadBlob reads a saved blob back into a filled trace. path may carry the
// blob extension or none.
func LoadBlob(path string) (*models.Trace, error) {
	if !strings.HasSuffix(path, BlobExt) {
		path += BlobExt
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var b blob
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	t, err := models.NewTrace(b.Operator, b.Chip, b.Bandwidth, b.Power, b.Frequencies,
		models.WithAverages(b.Averages),
		models.WithSubPath(b.SubPath),
		models.WithComment(b.Comment),
		models.WithKind(b.Kind))
	if err != nil {
		return nil, err
	}
	if err := t.SetData(b.Data); err != nil {
		return nil, err
	}
	return t, nil
}

// Text is the parsed content of a text artifact.
type Text struct {
	Comment     string
	Frequencies []float64
	Data        []complex128
}

// ReadText parses a text artifact. Values may be complex "(re+imi)" or real.
func ReadText(path string) (*Text, error) {
	if !strings.HasSuffix(path, TextExt) {
		path += TextExt
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		out      Text
		comments []string
		lineNo   int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			comments = append(comments, strings.TrimPrefix(strings.TrimPrefix(line, "#"), " "))
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		freqStr, valStr, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected frequency<TAB>value", path, lineNo)
		}
		freq, err := strconv.ParseFloat(strings.TrimSpace(freqStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		val, err := strconv.ParseComplex(strings.TrimSpace(valStr), 128)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out.Frequencies = append(out.Frequencies, freq)
		out.Data = append(out.Data, val)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out.Comment = strings.Join(comments, "\n")
	return &out, nil
}

// formatNumber prints integral values without a fraction, others in the
// shortest exact decimal form.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
