package tracefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

func filledTrace(t *testing.T, opts ...models.TraceOption) *models.Trace {
	t.Helper()
	tr, err := models.NewTrace("NB", "W5-32", 1000, -10, []float64{1, 2, 3}, opts...)
	require.NoError(t, err)
	require.NoError(t, tr.SetData([]complex128{1 + 0i, 0 + 1i, -1 + 0i}))
	return tr
}

func TestName(t *testing.T) {
	tr, err := models.NewTrace("NB", "W5-32", 100, -10, []float64{4.27e9, 4.28e9})
	require.NoError(t, err)
	assert.Equal(t, "measurement_4.27-4.28GHz_nop2_bw100_-10dBm", Name(tr))

	avg, err := models.NewTrace("NB", "W5-32", 0.5, 2.5, []float64{4.27e9, 4.28e9}, models.WithAverages(20))
	require.NoError(t, err)
	assert.Equal(t, "measurement_4.27-4.28GHz_nop2_bw0.5_2.5dBm_20avgs", Name(avg))
}

func TestSaveRoundTrip(t *testing.T) {
	base := t.TempDir()
	tr := filledTrace(t)

	path, err := Save(tr, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "NB", "W5-32", "measurement_0.00-0.00GHz_nop3_bw1000_-10dBm"), path)

	raw, err := os.ReadFile(path + TextExt)
	require.NoError(t, err)
	assert.Equal(t, "1\t(1+0i)\n2\t(0+1i)\n3\t(-1+0i)\n", string(raw))

	txt, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, txt.Frequencies)
	assert.Equal(t, []complex128{1, 1i, -1}, txt.Data)
	assert.Empty(t, txt.Comment)

	loaded, err := LoadBlob(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Frequencies, loaded.Frequencies)
	assert.Equal(t, tr.Data(), loaded.Data())
	assert.Equal(t, tr.Operator, loaded.Operator)
	assert.Equal(t, tr.Bandwidth, loaded.Bandwidth)
}

func TestSaveNeverOverwrites(t *testing.T) {
	base := t.TempDir()

	first, err := Save(filledTrace(t), base)
	require.NoError(t, err)
	second, err := Save(filledTrace(t), base)
	require.NoError(t, err)
	third, err := Save(filledTrace(t), base)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, first+"_v2", second)
	assert.Equal(t, first+"_v3", third)

	for _, p := range []string{first, second, third} {
		assert.FileExists(t, p+BlobExt)
		assert.FileExists(t, p+TextExt)
	}
}

func TestSaveCommentAndSubPath(t *testing.T) {
	base := t.TempDir()
	tr := filledTrace(t, models.WithComment("attenuation -72 dB\nfridge at 10 mK"), models.WithSubPath("run 11-02/Res3"))

	path, err := Save(tr, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "NB", "W5-32", "run 11-02", "Res3"), filepath.Dir(path))

	raw, err := os.ReadFile(path + TextExt)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	assert.Equal(t, "# attenuation -72 dB", lines[0])
	assert.Equal(t, "# fridge at 10 mK", lines[1])
	assert.Equal(t, "1\t(1+0i)", lines[2])

	txt, err := ReadText(path + TextExt)
	require.NoError(t, err)
	assert.Equal(t, "attenuation -72 dB\nfridge at 10 mK", txt.Comment)
	assert.Len(t, txt.Data, 3)
}

func TestSaveRejectsUnfilled(t *testing.T) {
	base := t.TempDir()
	tr, err := models.NewTrace("NB", "W5-32", 1000, -10, []float64{1, 2, 3})
	require.NoError(t, err)

	_, err = Save(tr, base)
	assert.ErrorIs(t, err, measerr.ErrValidation)

	// nothing is created on the failure path
	_, statErr := os.Stat(filepath.Join(base, "NB"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveRejectsPathsOutsideBase(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "data")

	tests := []struct {
		name string
		tr   *models.Trace
	}{
		{"sub path", filledTrace(t, models.WithSubPath("../../../escaped"))},
		{"absolute-looking sub path", filledTrace(t, models.WithSubPath("/../../../../escaped"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Save(tt.tr, base)
			assert.ErrorIs(t, err, measerr.ErrValidation)
		})
	}

	escaping, err := models.NewTrace("..", "..", 1000, -10, []float64{1})
	require.NoError(t, err)
	assert.ErrorIs(t, CheckDir(escaping, base), measerr.ErrValidation)
	assert.NoError(t, CheckDir(filledTrace(t, models.WithSubPath("a/../b")), base))

	_, statErr := os.Stat(filepath.Join(root, "escaped"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveSkipsOrphanText(t *testing.T) {
	base := t.TempDir()
	tr := filledTrace(t)
	dir := Dir(tr, base)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, Name(tr)+TextExt), []byte("stale\n"), 0o644))

	path, err := Save(tr, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Name(tr)+"_v2"), path)
	assert.FileExists(t, path+BlobExt)
}

func TestWriteArtifactsRemovesBlobWhenTextFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m")
	require.NoError(t, os.WriteFile(path+TextExt, nil, 0o644))

	err := writeArtifacts(path, filledTrace(t))
	require.Error(t, err)
	assert.NoFileExists(t, path+BlobExt)
}

func TestReadTextRealValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "legacy.txt")
	require.NoError(t, os.WriteFile(p, []byte("# legacy\n4100000000.0\t0.5\n4100010000.0\t0.25\n"), 0o644))

	txt, err := ReadText(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{4.1e9, 4.10001e9}, txt.Frequencies)
	assert.Equal(t, []complex128{0.5, 0.25}, txt.Data)
	assert.Equal(t, "legacy", txt.Comment)
}

func TestReadTextMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(p, []byte("1 2\n"), 0o644))

	_, err := ReadText(p)
	assert.Error(t, err)
}
