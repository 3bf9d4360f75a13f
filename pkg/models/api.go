package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status     string    `json:"status" example:"healthy" doc:"Service health status"`
		Version    string    `json:"version" example:"1.0.0" doc:"API version"`
		Instrument string    `json:"instrument" example:"sim" doc:"Instrument driver in use"`
		Time       time.Time `json:"time" doc:"Current server time"`
	}
}

// PlanGridRequest represents a request to size a frequency grid
type PlanGridRequest struct {
	Body struct {
		Preset             string  `json:"preset,omitempty" enum:"coarse,precise,spectrum" doc:"Named window; empty plans start..stop explicitly"`
		Center             float64 `json:"center,omitempty" doc:"Resonance frequency in Hz for window presets"`
		Q                  float64 `json:"q,omitempty" doc:"Quality factor sizing the linewidth"`
		Start              float64 `json:"start,omitempty" doc:"Start frequency in Hz"`
		Stop               float64 `json:"stop,omitempty" doc:"Stop frequency in Hz"`
		PointsPerLinewidth float64 `json:"points_per_linewidth,omitempty" doc:"Resolution for explicit plans"`
	}
}

// PlanGridResponse represents a planned grid
type PlanGridResponse struct {
	Body struct {
		SweepPlan
		Step float64 `json:"step" doc:"Spacing between points in Hz"`
	}
}

// FindPeaksRequest represents a request to locate resonances in a sweep
type FindPeaksRequest struct {
	Body struct {
		Frequencies     []float64 `json:"frequencies" required:"true" doc:"Probe frequencies in Hz"`
		Real            []float64 `json:"real" required:"true" doc:"Real part of the response"`
		Imag            []float64 `json:"imag" required:"true" doc:"Imaginary part of the response"`
		NumPeaks        int       `json:"num_peaks" minimum:"0" required:"true" doc:"Number of features to return"`
		ExclusionRadius int       `json:"exclusion_radius,omitempty" minimum:"0" doc:"Samples masked around each pick; zero uses the default"`
	}
}

// PeaksResponse represents located resonance frequencies
type PeaksResponse struct {
	Body struct {
		Peaks []float64 `json:"peaks" doc:"Feature frequencies in Hz, ascending"`
		Path  string    `json:"path,omitempty" doc:"Saved scan artifacts, without extension"`
	}
}

// ScanRequest represents a request to sweep a wide range and locate resonances
type ScanRequest struct {
	Body struct {
		Operator        string  `json:"operator" required:"true" minLength:"1" doc:"Operator directory"`
		Chip            string  `json:"chip" required:"true" minLength:"1" doc:"Chip directory"`
		Start           float64 `json:"start" required:"true" doc:"Start frequency in Hz"`
		Stop            float64 `json:"stop" required:"true" doc:"Stop frequency in Hz"`
		Points          int     `json:"points,omitempty" minimum:"0" maximum:"100001" doc:"Point count; zero sizes a full-spectrum grid"`
		Power           float64 `json:"power,omitempty" doc:"VNA output power in dBm"`
		Bandwidth       float64 `json:"bandwidth,omitempty" doc:"IF bandwidth in Hz; zero uses spectrum settings"`
		Averages        int     `json:"averages,omitempty" minimum:"0" doc:"Sweep averages"`
		NumPeaks        int     `json:"num_peaks" minimum:"0" required:"true" doc:"Number of resonances to locate"`
		ExclusionRadius int     `json:"exclusion_radius,omitempty" minimum:"0" doc:"Samples masked around each pick"`
		Save            bool    `json:"save,omitempty" doc:"Save the scan trace"`
	}
}

// CreateSweepRequest represents a request to acquire one trace
type CreateSweepRequest struct {
	Body struct {
		Operator  string  `json:"operator" required:"true" minLength:"1" doc:"Operator directory"`
		Chip      string  `json:"chip" required:"true" minLength:"1" doc:"Chip directory"`
		SubPath   string  `json:"sub_path,omitempty" doc:"Directory below the chip"`
		Power     float64 `json:"power" required:"true" doc:"VNA output power in dBm"`
		Bandwidth float64 `json:"bandwidth" required:"true" doc:"IF bandwidth in Hz"`
		Averages  int     `json:"averages,omitempty" minimum:"0" doc:"Sweep averages, default 1"`
		Start     float64 `json:"start" required:"true" doc:"Start frequency in Hz"`
		Stop      float64 `json:"stop" required:"true" doc:"Stop frequency in Hz"`
		Points    int     `json:"points" minimum:"1" maximum:"100001" required:"true" doc:"Number of points"`
		Comment   string  `json:"comment,omitempty" maxLength:"2000" doc:"Comment written to the text artifact"`
	}
}

// SweepAccepted is the body returned when an acquisition is queued
type SweepAccepted struct {
	ID     string `json:"id" doc:"Run unique identifier"`
	Status string `json:"status" enum:"pending,running,completed,failed" doc:"Run status"`
}

// CreateSweepResponse represents the response from queueing an acquisition
type CreateSweepResponse struct {
	Body SweepAccepted
}

// PowerStepInput is one step of a campaign request
type PowerStepInput struct {
	Power     float64 `json:"power" doc:"VNA output power in dBm"`
	Bandwidth float64 `json:"bandwidth" doc:"IF bandwidth in Hz"`
	Averages  int     `json:"averages" minimum:"1" doc:"Sweep averages"`
}

// CreateCampaignRequest represents a request to run a power sweep campaign
type CreateCampaignRequest struct {
	Body struct {
		Operator        string           `json:"operator" required:"true" minLength:"1" doc:"Operator directory"`
		Chip            string           `json:"chip" required:"true" minLength:"1" doc:"Chip directory"`
		SubFolder       string           `json:"sub_folder,omitempty" doc:"Directory below the chip"`
		Attenuation     float64          `json:"attenuation" required:"true" doc:"Input line attenuation in dB"`
		Resonances      []float64        `json:"resonances" required:"true" minItems:"1" doc:"Resonance frequencies in Hz"`
		Select          []int            `json:"select,omitempty" doc:"1-based resonances to measure; all when empty"`
		Preset          string           `json:"preset,omitempty" enum:"coarse,precise" doc:"Window preset; empty uses span and points"`
		Q               float64          `json:"q,omitempty" doc:"Loaded quality factor for window presets"`
		Span            float64          `json:"span,omitempty" doc:"Fixed window span in Hz"`
		Points          int              `json:"points,omitempty" minimum:"0" maximum:"100001" doc:"Fixed window point count"`
		WarmAttenuation *int             `json:"warm_attenuation,omitempty" doc:"Use the stored power table for -10 or -60 dB"`
		Steps           []PowerStepInput `json:"steps,omitempty" doc:"Explicit power steps"`
	}
}

// CreateCampaignResponse represents the response from starting a campaign
type CreateCampaignResponse struct {
	Body struct {
		Acquisitions int    `json:"acquisitions" doc:"Number of acquisitions planned"`
		Message      string `json:"message" doc:"Confirmation message"`
	}
}

// GetSweepRequest represents a request addressing one run
type GetSweepRequest struct {
	ID string `path:"id" doc:"Run ID"`
}

// GetSweepResponse represents the current state of a run
type GetSweepResponse struct {
	Body SweepRun
}

// ListSweepsRequest represents a request for the runs of one chip
type ListSweepsRequest struct {
	Operator string `query:"operator" required:"true" doc:"Operator directory"`
	Chip     string `query:"chip" required:"true" doc:"Chip directory"`
}

// ListSweepsResponse represents the runs of one chip
type ListSweepsResponse struct {
	Body struct {
		Runs []*SweepRun `json:"runs" doc:"Runs, newest first"`
	}
}

// GetFitResponse represents the stored fit of a run
type GetFitResponse struct {
	Body FitResult
}

// GetArtifactsResponse represents download URLs of a run's mirrored artifacts
type GetArtifactsResponse struct {
	Body struct {
		URLs map[string]string `json:"urls" doc:"Pre-signed download URL per artifact extension"`
	}
}

// AggregateRequest represents a request to collect one fit quantity over power
type AggregateRequest struct {
	Body struct {
		Directories        []string `json:"directories" required:"true" minItems:"1" doc:"Result directories below the data root, relative ones resolved against it"`
		Key                string   `json:"key" required:"true" minLength:"1" example:"Qi" doc:"Fit quantity"`
		DefaultAttenuation *int     `json:"default_attenuation,omitempty" doc:"Attenuation for directories without one"`
		MinPower           *int     `json:"min_power,omitempty" doc:"Lowest corrected power kept"`
		MaxPower           *int     `json:"max_power,omitempty" doc:"Highest corrected power kept"`
	}
}

// AggregateResponse represents a power series of one fit quantity
type AggregateResponse struct {
	Body struct {
		Key string `json:"key" doc:"Fit quantity"`
		PowerSeries
		Watts []float64 `json:"watts" doc:"Corrected input power in W"`
	}
}
