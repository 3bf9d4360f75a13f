package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/campaign"
	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/internal/repository"
	"github.com/RMahshie/resonara/internal/storage"
	"github.com/RMahshie/resonara/internal/tracefile"
	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

// SweepHandler handles acquisition requests and run lookups
type SweepHandler struct {
	runner *campaign.Runner
	repo   repository.RunRepository
	store  storage.ObjectStore // nil when mirroring is disabled
	fitExt string

	wg sync.WaitGroup
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(runner *campaign.Runner, repo repository.RunRepository, store storage.ObjectStore, fitExt string) *SweepHandler {
	if fitExt == "" {
		fitExt = fit.DefaultExtension
	}
	return &SweepHandler{runner: runner, repo: repo, store: store, fitExt: fitExt}
}

// Wait blocks until background acquisitions have finished
func (h *SweepHandler) Wait() { h.wg.Wait() }

func (h *SweepHandler) background(name string, fn func(ctx context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(context.Background()); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Background acquisition failed")
		}
	}()
}

// CreateSweep records a pending run and acquires it in the background
func (h *SweepHandler) CreateSweep(ctx context.Context, req *models.CreateSweepRequest) (*models.CreateSweepResponse, error) {
	in := req.Body
	averages := in.Averages
	if averages == 0 {
		averages = 1
	}
	if in.Points > models.MaxPoints {
		return nil, apiError("Invalid sweep", measerr.Configuration("point count must be <= %d, got %d", models.MaxPoints, in.Points))
	}
	freqs := models.SweepPlan{Start: in.Start, Stop: in.Stop, Points: in.Points}.Frequencies()
	trace, err := models.NewTrace(in.Operator, in.Chip, in.Bandwidth, in.Power, freqs,
		models.WithAverages(averages), models.WithSubPath(in.SubPath), models.WithComment(in.Comment))
	if err != nil {
		return nil, apiError("Invalid sweep", err)
	}

	run, err := h.runner.Submit(ctx, trace)
	if err != nil {
		return nil, apiError("Failed to create run", err)
	}
	log.Info().Str("runID", run.ID).Str("chip", run.Chip).Float64("power", run.Power).Msg("Sweep queued")

	h.background("sweep "+run.ID, func(ctx context.Context) error {
		_, err := h.runner.Execute(ctx, run.ID, trace)
		return err
	})

	return &models.CreateSweepResponse{
		Body: models.SweepAccepted{ID: run.ID, Status: run.Status},
	}, nil
}

func parseRunID(id string) (uuid.UUID, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest("Invalid run ID", err)
	}
	return runID, nil
}

// GetSweep returns the current state of a run
func (h *SweepHandler) GetSweep(ctx context.Context, req *models.GetSweepRequest) (*models.GetSweepResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	run, err := h.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, apiError("Run not found", err)
	}
	return &models.GetSweepResponse{Body: *run}, nil
}

// ListSweeps returns the runs of one chip
func (h *SweepHandler) ListSweeps(ctx context.Context, req *models.ListSweepsRequest) (*models.ListSweepsResponse, error) {
	runs, err := h.repo.ListByChip(ctx, req.Operator, req.Chip)
	if err != nil {
		return nil, apiError("Failed to list runs", err)
	}
	resp := &models.ListSweepsResponse{}
	resp.Body.Runs = runs
	if resp.Body.Runs == nil {
		resp.Body.Runs = []*models.SweepRun{}
	}
	return resp, nil
}

// GetFit returns the stored fit record of a run
func (h *SweepHandler) GetFit(ctx context.Context, req *models.GetSweepRequest) (*models.GetFitResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	result, err := h.repo.GetFit(ctx, runID)
	if err != nil {
		return nil, apiError("Fit not found", err)
	}
	return &models.GetFitResponse{Body: *result}, nil
}

// GetArtifacts returns download URLs for the mirrored artifacts of a run
func (h *SweepHandler) GetArtifacts(ctx context.Context, req *models.GetSweepRequest) (*models.GetArtifactsResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	if h.store == nil {
		return nil, huma.Error501NotImplemented("Artifact storage is not configured")
	}
	run, err := h.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, apiError("Run not found", err)
	}
	if run.Status != models.StatusCompleted || run.ArtifactPath == nil {
		return nil, huma.Error409Conflict("Run not yet completed", fmt.Errorf("run status is %s", run.Status))
	}

	base, err := storage.ArtifactKey(h.runner.BasePath(), *run.ArtifactPath)
	if err != nil {
		return nil, apiError("Failed to resolve artifacts", err)
	}
	exts := []string{tracefile.BlobExt, tracefile.TextExt}
	if _, err := h.repo.GetFit(ctx, runID); err == nil {
		exts = append(exts, h.fitExt)
	}

	resp := &models.GetArtifactsResponse{}
	resp.Body.URLs = make(map[string]string, len(exts))
	for _, ext := range exts {
		url, err := h.store.DownloadURL(ctx, base+ext)
		if err != nil {
			return nil, apiError("Failed to generate download URL", err)
		}
		resp.Body.URLs[ext] = url
	}
	return resp, nil
}

// Scan sweeps a wide range and locates resonances. It is refused while an
// acquisition holds the instrument.
func (h *SweepHandler) Scan(ctx context.Context, req *models.ScanRequest) (*models.PeaksResponse, error) {
	in := req.Body
	if h.runner.Busy() {
		return nil, huma.Error409Conflict("Instrument is busy, retry when running acquisitions have finished")
	}
	d, err := h.runner.Discover(ctx, campaign.PeakScan{
		Operator:        in.Operator,
		Chip:            in.Chip,
		Start:           in.Start,
		Stop:            in.Stop,
		Points:          in.Points,
		Settings:        campaign.PowerStep{Power: in.Power, Bandwidth: in.Bandwidth, Averages: in.Averages},
		NumPeaks:        in.NumPeaks,
		ExclusionRadius: in.ExclusionRadius,
		Save:            in.Save,
	})
	if err != nil {
		return nil, apiError("Peak scan failed", err)
	}
	resp := &models.PeaksResponse{}
	resp.Body.Peaks = d.Peaks
	resp.Body.Path = d.Path
	return resp, nil
}

// CreateCampaign validates a power sweep and runs it in the background
func (h *SweepHandler) CreateCampaign(ctx context.Context, req *models.CreateCampaignRequest) (*models.CreateCampaignResponse, error) {
	in := req.Body
	plan := campaign.Plan{
		Operator:    in.Operator,
		Chip:        in.Chip,
		SubFolder:   in.SubFolder,
		Attenuation: in.Attenuation,
		Resonances:  in.Resonances,
		Select:      in.Select,
		Window:      campaign.Window{Preset: in.Preset, Q: in.Q, Span: in.Span, Points: in.Points},
	}
	switch {
	case len(in.Steps) > 0:
		for _, s := range in.Steps {
			plan.Steps = append(plan.Steps, campaign.PowerStep{Power: s.Power, Bandwidth: s.Bandwidth, Averages: s.Averages})
		}
	case in.WarmAttenuation != nil:
		steps, err := campaign.PowerTable(*in.WarmAttenuation)
		if err != nil {
			return nil, apiError("Invalid campaign", err)
		}
		plan.Steps = steps
	default:
		return nil, apiError("Invalid campaign", measerr.Configuration("either steps or warm_attenuation is required"))
	}

	n, err := h.runner.Acquisitions(plan)
	if err != nil {
		return nil, apiError("Invalid campaign", err)
	}

	h.background("campaign "+plan.Chip, func(ctx context.Context) error {
		_, err := h.runner.Run(ctx, plan)
		return err
	})

	resp := &models.CreateCampaignResponse{}
	resp.Body.Acquisitions = n
	resp.Body.Message = "Campaign started"
	return resp, nil
}
