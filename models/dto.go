package models

import "time"

// SummarizationRequest is the body of POST /api/summarize.
type SummarizationRequest struct {
	URL            string `json:"url"`
	Model          string `json:"model"`
	SystemPrompt   string `json:"system_prompt"`
	DryRun         bool   `json:"dry_run"`
	TranscriptOnly bool   `json:"transcript_only"`
}

// SummarizationResult is the success body of POST /api/summarize.
type SummarizationResult struct {
	VideoName string `json:"video_name"`
	Summary   string `json:"summary"`
	Subtitles string `json:"subtitles"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Models []string `json:"models"`
}

// Run records the outcome of one pipeline execution. It never carries transcript or summary text.
type Run struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	VideoID    string    `json:"video_id"`
	Model      string    `json:"model"`
	Mode       string    `json:"mode"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ModeSummary        = "summary"
	ModeDryRun         = "dry_run"
	ModeTranscriptOnly = "transcript_only"

	OutcomeOK = "ok"
)

// Mode reports which branch of the pipeline the request takes.
func (r *SummarizationRequest) Mode() string {
	switch {
	case r.DryRun:
		return ModeDryRun
	case r.TranscriptOnly:
		return ModeTranscriptOnly
	default:
		return ModeSummary
	}
}
