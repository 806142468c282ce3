package domain

import "time"

const (
	StatusSkipped   = "skipped"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Report is the terminal signal of one invocation.
type Report struct {
	InvocationID   string          `json:"invocation_id"`
	Bucket         string          `json:"bucket"`
	Key            string          `json:"key"`
	Classification string          `json:"classification,omitempty"`
	Status         string          `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	SourceBytes    int             `json:"source_bytes,omitempty"`
	Variants       []VariantResult `json:"variants,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`

	// Err is set when Status is failed.
	Err error `json:"-"`
}

type VariantResult struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Bytes  int    `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r VariantResult) Succeeded() bool {
	return r.Error == ""
}

func (r Report) Skipped() bool   { return r.Status == StatusSkipped }
func (r Report) Succeeded() bool { return r.Status == StatusSucceeded }
func (r Report) Failed() bool    { return r.Status == StatusFailed }

func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
