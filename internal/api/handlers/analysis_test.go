package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/resonara/internal/aggregate"
	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/pkg/models"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.True(t, errors.As(err, &se), "expected huma status error, got %v", err)
	return se.GetStatus()
}

func TestPlanGrid(t *testing.T) {
	h := NewAnalysisHandler(t.TempDir(), -70, aggregate.DefaultPowerRange, "")

	tests := []struct {
		name       string
		setup      func(*models.PlanGridRequest)
		wantPoints int
		wantCode   int
	}{
		{
			name: "explicit bounds",
			setup: func(r *models.PlanGridRequest) {
				r.Body.Start, r.Body.Stop, r.Body.Q, r.Body.PointsPerLinewidth = 1e9, 1.001e9, 1e6, 1
			},
			wantPoints: 1000,
		},
		{
			name: "precise preset",
			setup: func(r *models.PlanGridRequest) {
				r.Body.Preset, r.Body.Center, r.Body.Q = "precise", 5e9, 1e5
			},
			wantPoints: 480,
		},
		{
			name: "zero quality factor",
			setup: func(r *models.PlanGridRequest) {
				r.Body.Start, r.Body.Stop, r.Body.PointsPerLinewidth = 1e9, 2e9, 2
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "inverted span",
			setup: func(r *models.PlanGridRequest) {
				r.Body.Preset, r.Body.Start, r.Body.Stop = "spectrum", 2e9, 1e9
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &models.PlanGridRequest{}
			tt.setup(req)
			resp, err := h.PlanGrid(context.Background(), req)
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, statusOf(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPoints, resp.Body.Points)
			assert.Greater(t, resp.Body.Step, 0.0)
		})
	}
}

func TestFindPeaks(t *testing.T) {
	h := NewAnalysisHandler(t.TempDir(), -70, aggregate.DefaultPowerRange, "")

	req := &models.FindPeaksRequest{}
	req.Body.Frequencies = []float64{1, 2, 3, 4, 5}
	req.Body.Real = []float64{1, 1, 0, 1, 1}
	req.Body.Imag = []float64{0, 0, 0, 0, 0}
	req.Body.NumPeaks = 1
	req.Body.ExclusionRadius = 1

	resp, err := h.FindPeaks(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, resp.Body.Peaks)

	req.Body.Imag = []float64{0}
	_, err = h.FindPeaks(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	req.Body.Imag = []float64{0, 0, 0, 0, 0}
	req.Body.NumPeaks = 6
	_, err = h.FindPeaks(context.Background(), req)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestAggregate(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "NB", "W5", "detailed_sweep_-60dBm", "Res1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, fit.WriteRecord(filepath.Join(dir, "measurement_4.30-4.30GHz_nop31_bw10_-10dBm.fit"), models.FitRecord{"Qi": 1.5e5}))
	require.NoError(t, fit.WriteRecord(filepath.Join(dir, "measurement_4.30-4.30GHz_nop31_bw10_-40dBm.fit"), models.FitRecord{"Qi": 1.2e5}))
	require.NoError(t, fit.WriteRecord(filepath.Join(dir, "measurement_4.30-4.30GHz_nop31_bw10_10dBm.fit"), models.FitRecord{"Qi": 2e5}))

	h := NewAnalysisHandler(base, -70, aggregate.DefaultPowerRange, "")

	req := &models.AggregateRequest{}
	req.Body.Directories = []string{filepath.Join("NB", "W5", "detailed_sweep_-60dBm", "Res1")}
	req.Body.Key = "Qi"

	resp, err := h.Aggregate(context.Background(), req)
	require.NoError(t, err)
	// +10 dBm corrects to -50 and is outside the default range
	assert.Equal(t, []int{-100, -70}, resp.Body.Powers)
	assert.Equal(t, []float64{1.2e5, 1.5e5}, resp.Body.Values)
	require.Len(t, resp.Body.Watts, 2)
	assert.InDelta(t, 1e-13, resp.Body.Watts[0], 1e-20)

	maxPower := -40
	req.Body.MaxPower = &maxPower
	resp, err = h.Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{-100, -70, -50}, resp.Body.Powers)

	req.Body.Key = "Qc"
	_, err = h.Aggregate(context.Background(), req)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	req.Body.Directories = []string{"missing"}
	_, err = h.Aggregate(context.Background(), req)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestAggregate_RejectsDirectoriesOutsideBase(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(base, 0o755))
	h := NewAnalysisHandler(base, -70, aggregate.DefaultPowerRange, "")

	for _, dir := range []string{"..", filepath.Join("NB", "..", "..", "other"), root, filepath.Join(base, "..")} {
		req := &models.AggregateRequest{}
		req.Body.Directories = []string{dir}
		req.Body.Key = "Qi"
		_, err := h.Aggregate(context.Background(), req)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err), dir)
	}

	// absolute directories below the base are accepted
	req := &models.AggregateRequest{}
	req.Body.Directories = []string{base}
	req.Body.Key = "Qi"
	resp, err := h.Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Body.Powers)
}
