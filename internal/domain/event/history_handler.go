package event

import (
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// AcquisitionRecorder persists finished acquisition attempts
type AcquisitionRecorder interface {
	RecordAcquisition(rec *domain.AcquisitionRecord) error
}

// HistoryHandler writes terminal acquisition events to the history log
type HistoryHandler struct {
	recorder AcquisitionRecorder
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(recorder AcquisitionRecorder) *HistoryHandler {
	return &HistoryHandler{recorder: recorder}
}

// Handle converts the event into a record
func (h *HistoryHandler) Handle(event DomainEvent) error {
	var rec *domain.AcquisitionRecord
	switch e := event.(type) {
	case AcquisitionReady:
		outcome := domain.OutcomeReady
		if e.Cached {
			outcome = domain.OutcomeCached
		}
		rec = newRecord(e.Key, outcome, e.Bytes, e.StartedAt, e)
		rec.LocalPath = e.LocalPath
	case AcquisitionFailed:
		rec = newRecord(e.Key, domain.OutcomeFailed, e.Bytes, e.StartedAt, e)
		rec.Error = e.Error
	case AcquisitionCancelled:
		rec = newRecord(e.Key, domain.OutcomeCancelled, e.Bytes, e.StartedAt, e)
	default:
		return nil
	}
	return h.recorder.RecordAcquisition(rec)
}

func newRecord(key domain.AssetKey, outcome string, bytes int64, startedAt time.Time, e DomainEvent) *domain.AcquisitionRecord {
	return &domain.AcquisitionRecord{
		Identifier: key.Identifier,
		Resolution: key.Resolution,
		Outcome:    outcome,
		Bytes:      bytes,
		StartedAt:  startedAt,
		FinishedAt: e.OccurredAt(),
	}
}

// HandledEvents returns the terminal acquisition events
func (h *HistoryHandler) HandledEvents() []string {
	return []string{NameAcquisitionReady, NameAcquisitionFailed, NameAcquisitionCancelled}
}
