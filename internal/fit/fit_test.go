package fit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/resonara/pkg/models"
)

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(strings.NewReader("Qi\t150000.0\nQc\t1.6e5\r\n\nfr\t4100000000\n"))
	require.NoError(t, err)
	assert.Equal(t, models.FitRecord{"Qi": 150000, "Qc": 160000, "fr": 4.1e9}, rec)

	_, err = ParseRecord(strings.NewReader("Qi 150000\n"))
	assert.Error(t, err)
	_, err = ParseRecord(strings.NewReader("Qi\tnan-ish\n"))
	assert.Error(t, err)
}

func TestWriteReadRecord(t *testing.T) {
	p := filepath.Join(t.TempDir(), "res.fit")
	rec := models.FitRecord{"Ql": 75000.5, "Qi": 150000, "phi": 0.12}
	require.NoError(t, WriteRecord(p, rec))

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "Qi\t150000\nQl\t75000.5\nphi\t0.12\n", string(raw))

	back, err := ReadRecord(p)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fit.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func TestCommandFitter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "measurement")
	require.NoError(t, os.WriteFile(path+".txt", []byte("1\t(1+0i)\n"), 0o644))

	// $1 is the text artifact, $2 the fit file to write
	script := writeScript(t, "#!/bin/sh\ntest -f \"$1\" || exit 3\nprintf 'Qi\\t150000.0\\nQc\\t160000\\n' > \"$2\"\n")
	f := NewCommandFitter("sh", script, "")
	assert.Equal(t, DefaultExtension, f.Extension)

	rec, err := f.Fit(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, models.FitRecord{"Qi": 150000, "Qc": 160000}, rec)
	assert.FileExists(t, path+".fit")
}

func TestCommandFitterFailure(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho 'fit did not converge'\nexit 1\n")
	f := NewCommandFitter("sh", script, ".fit")

	_, err := f.Fit(context.Background(), filepath.Join(t.TempDir(), "measurement"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fit did not converge")
}

func TestFunc(t *testing.T) {
	var got string
	f := Func(func(_ context.Context, path string) (models.FitRecord, error) {
		got = path
		return models.FitRecord{"Qi": 1}, nil
	})
	rec, err := f.Fit(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", got)
	assert.Equal(t, 1.0, rec["Qi"])
}
