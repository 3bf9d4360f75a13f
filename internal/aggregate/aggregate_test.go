package aggregate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/resonara/pkg/measerr"
)

func runDir(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for f, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(content), 0o644))
	}
	return dir
}

func TestCollectSingleFile(t *testing.T) {
	dir := runDir(t, "run_-60dBm", map[string]string{"res1_-10dBm.fit": "Qi\t150000.0"})

	series, err := Collect([]string{dir}, "Qi", -70, PowerRange{Min: -200, Max: -70})
	require.NoError(t, err)
	assert.Equal(t, []int{-70}, series.Powers)
	assert.Equal(t, []float64{150000.0}, series.Values)
}

func TestCollectDefaultAttenuation(t *testing.T) {
	dir := runDir(t, "plain", map[string]string{"res1_-10dBm.fit": "Qi\t1\n"})

	series, err := Collect([]string{dir}, "Qi", -70, DefaultPowerRange)
	require.NoError(t, err)
	assert.Equal(t, []int{-80}, series.Powers)
	assert.Equal(t, []float64{1}, series.Values)
}

func TestCollectSortsAndFilters(t *testing.T) {
	dir := runDir(t, "detailed_sweep_-60dBm", map[string]string{
		"m_bw10_-5dBm.fit":  "Qi\t3\n", // -65, above range
		"m_bw10_10dBm.fit":  "Qi\t5\n", // -50, above range
		"m_bw10_-35dBm.fit": "Qi\t1\n",
		"m_bw10_-20dBm.fit": "Qi\t2\n",
		"m_bw10_-30dBm.txt": "Qi\t99\n", // wrong extension
		"notes.fit":         "Qi\t99\n", // no power in name
	})

	series, err := Collect([]string{dir}, "Qi", 0, DefaultPowerRange)
	require.NoError(t, err)
	assert.Equal(t, []int{-95, -80}, series.Powers)
	assert.Equal(t, []float64{1, 2}, series.Values)
}

func TestCollectInclusiveBounds(t *testing.T) {
	dir := runDir(t, "att_-60dBm", map[string]string{
		"a_-10dBm.fit": "Qi\t1\n", // -70
		"a_-9dBm.fit":  "Qi\t2\n", // -69
		"a_-40dBm.fit": "Qi\t3\n", // -100
	})

	series, err := Collect([]string{dir}, "Qi", 0, PowerRange{Min: -100, Max: -70})
	require.NoError(t, err)
	assert.Equal(t, []int{-100, -70}, series.Powers)
	assert.Equal(t, []float64{3, 1}, series.Values)
}

func TestCollectLastDirectoryWins(t *testing.T) {
	// both map to -80: the later directory silently replaces the earlier one
	first := runDir(t, "cold_-60dBm", map[string]string{"r_-20dBm.fit": "Qi\t1\n"})
	second := runDir(t, "warm_-70dBm", map[string]string{"r_-10dBm.fit": "Qi\t2\n"})

	series, err := Collect([]string{first, second}, "Qi", 0, DefaultPowerRange)
	require.NoError(t, err)
	assert.Equal(t, []int{-80}, series.Powers)
	assert.Equal(t, []float64{2}, series.Values)

	series, err = Collect([]string{second, first}, "Qi", 0, DefaultPowerRange)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, series.Values)
}

func TestCollectMissingKey(t *testing.T) {
	dir := runDir(t, "run_-60dBm", map[string]string{
		"r_-20dBm.fit": "Qi\t1\nQc\t2\n",
		"r_-30dBm.fit": "Qc\t2\n",
	})

	_, err := Collect([]string{dir}, "Qi", 0, DefaultPowerRange)
	require.Error(t, err)
	assert.ErrorIs(t, err, measerr.ErrMissingKey)
	var mk *measerr.MissingKeyError
	require.ErrorAs(t, err, &mk)
	assert.Equal(t, "Qi", mk.Key)
	assert.Equal(t, -90, mk.Power)
}

func TestCollectIgnoresFilteredMissingKey(t *testing.T) {
	dir := runDir(t, "run_-60dBm", map[string]string{
		"r_-20dBm.fit": "Qi\t1\n",
		"r_20dBm.fit":  "Qc\t2\n", // -40, filtered before the key lookup
	})

	series, err := Collect([]string{dir}, "Qi", 0, DefaultPowerRange)
	require.NoError(t, err)
	assert.Equal(t, []int{-80}, series.Powers)
}

func TestCollectCustomExtension(t *testing.T) {
	dir := runDir(t, "run_-60dBm", map[string]string{
		"r_-20dBm.res": "Qi\t7\n",
		"r_-30dBm.fit": "Qi\t8\n",
	})

	series, err := Collect([]string{dir}, "Qi", 0, DefaultPowerRange, WithExtension(".res"))
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, series.Values)
}

func TestCollectMissingDirectory(t *testing.T) {
	_, err := Collect([]string{filepath.Join(t.TempDir(), "gone_-60dBm")}, "Qi", 0, DefaultPowerRange)
	assert.Error(t, err)
}

func TestPatterns(t *testing.T) {
	att, ok := Attenuation("/data/NB/W5/detailed_sweep_-60dBm/Res3")
	assert.True(t, ok)
	assert.Equal(t, -60, att)

	att, ok = Attenuation("20dBm_pad")
	assert.True(t, ok)
	assert.Equal(t, 20, att)

	_, ok = Attenuation("/data/NB/W5/Res3")
	assert.False(t, ok)

	p, ok := FilePower("measurement_4.27-4.28GHz_nop480_bw10_-25dBm_20avgs.fit")
	assert.True(t, ok)
	assert.Equal(t, -25, p)

	// power must follow an underscore
	_, ok = FilePower("res-10dBm.fit")
	assert.False(t, ok)
}
