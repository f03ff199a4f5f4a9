package domain

import "time"

// Acquisition outcomes recorded in history
const (
	OutcomeReady     = "ready"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeCached    = "cached"
)

// AcquisitionRecord is one finished acquisition attempt
type AcquisitionRecord struct {
	ID         int64      `json:"id"`
	Identifier string     `json:"identifier"`
	Resolution Resolution `json:"resolution"`
	Outcome    string     `json:"outcome"`
	Bytes      int64      `json:"bytes"`
	Error      string     `json:"error,omitempty"`
	LocalPath  string     `json:"local_path,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Duration returns how long the attempt took
func (r *AcquisitionRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CatalogAsset is a listing entry remembered by the catalog
type CatalogAsset struct {
	AssetSummary
	LastSeenAt time.Time `json:"last_seen_at"`
}
