package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/RMahshie/resonara/internal/api/handlers"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, analysisHandler *handlers.AnalysisHandler, sweepHandler *handlers.SweepHandler) {
	// Register analysis routes
	huma.Register(api, huma.Operation{
		OperationID: "planGrid",
		Method:      http.MethodPost,
		Path:        "/api/grid",
		Summary:     "Plan a frequency grid",
		Description: "Sizes a linear frequency axis from a preset window or explicit bounds",
		Tags:        []string{"Analysis"},
	}, analysisHandler.PlanGrid)

	huma.Register(api, huma.Operation{
		OperationID: "findPeaks",
		Method:      http.MethodPost,
		Path:        "/api/peaks",
		Summary:     "Locate resonances",
		Description: "Returns the frequencies of the steepest features of posted sweep data",
		Tags:        []string{"Analysis"},
	}, analysisHandler.FindPeaks)

	huma.Register(api, huma.Operation{
		OperationID: "aggregate",
		Method:      http.MethodPost,
		Path:        "/api/aggregate",
		Summary:     "Aggregate fit results",
		Description: "Collects one fit quantity over attenuation-corrected input power",
		Tags:        []string{"Analysis"},
	}, analysisHandler.Aggregate)

	// Register acquisition routes
	huma.Register(api, huma.Operation{
		OperationID: "createSweep",
		Method:      http.MethodPost,
		Path:        "/api/sweeps",
		Summary:     "Acquire a trace",
		Description: "Creates a pending run and acquires it in the background",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.CreateSweep)

	huma.Register(api, huma.Operation{
		OperationID: "listSweeps",
		Method:      http.MethodGet,
		Path:        "/api/sweeps",
		Summary:     "List runs of a chip",
		Description: "Returns the runs of one operator and chip, newest first",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.ListSweeps)

	huma.Register(api, huma.Operation{
		OperationID: "getSweep",
		Method:      http.MethodGet,
		Path:        "/api/sweeps/{id}",
		Summary:     "Get run status",
		Description: "Returns the status and configuration of a run",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.GetSweep)

	huma.Register(api, huma.Operation{
		OperationID: "getSweepFit",
		Method:      http.MethodGet,
		Path:        "/api/sweeps/{id}/fit",
		Summary:     "Get fit result",
		Description: "Returns the fit record stored for a run",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.GetFit)

	huma.Register(api, huma.Operation{
		OperationID: "getSweepArtifacts",
		Method:      http.MethodGet,
		Path:        "/api/sweeps/{id}/artifacts",
		Summary:     "Get artifact download URLs",
		Description: "Returns pre-signed URLs for the mirrored artifacts of a completed run",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.GetArtifacts)

	huma.Register(api, huma.Operation{
		OperationID: "scan",
		Method:      http.MethodPost,
		Path:        "/api/scans",
		Summary:     "Scan for resonances",
		Description: "Sweeps a wide range and locates the steepest features; refused with 409 while the instrument is busy",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.Scan)

	huma.Register(api, huma.Operation{
		OperationID: "createCampaign",
		Method:      http.MethodPost,
		Path:        "/api/campaigns",
		Summary:     "Run a power sweep campaign",
		Description: "Validates a power sweep over selected resonances and runs it in the background",
		Tags:        []string{"Sweeps"},
	}, sweepHandler.CreateCampaign)
}
