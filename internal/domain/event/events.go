package event

import (
	"time"

	"github.com/vertextoedge/texture-cache/internal/domain"
)

// Event names
const (
	NameAcquisitionStarted   = "acquisition.started"
	NameAcquisitionReady     = "acquisition.ready"
	NameAcquisitionFailed    = "acquisition.failed"
	NameAcquisitionCancelled = "acquisition.cancelled"

	// NameAll subscribes a handler to every event
	NameAll = "*"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AcquisitionStarted is raised when a download begins for a key
type AcquisitionStarted struct {
	BaseEvent
	Key domain.AssetKey
	URL string
}

// EventName returns the event name
func (e AcquisitionStarted) EventName() string {
	return NameAcquisitionStarted
}

// NewAcquisitionStarted creates a new AcquisitionStarted event
func NewAcquisitionStarted(key domain.AssetKey, url string) AcquisitionStarted {
	return AcquisitionStarted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Key:       key,
		URL:       url,
	}
}

// AcquisitionReady is raised when an extraction directory becomes available.
// Cached is set when the directory already existed and nothing was downloaded.
type AcquisitionReady struct {
	BaseEvent
	Key       domain.AssetKey
	LocalPath string
	Bytes     int64
	Files     int
	StartedAt time.Time
	Cached    bool
}

// EventName returns the event name
func (e AcquisitionReady) EventName() string {
	return NameAcquisitionReady
}

// NewAcquisitionReady creates a new AcquisitionReady event
func NewAcquisitionReady(key domain.AssetKey, localPath string, bytes int64, files int, startedAt time.Time, cached bool) AcquisitionReady {
	return AcquisitionReady{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Key:       key,
		LocalPath: localPath,
		Bytes:     bytes,
		Files:     files,
		StartedAt: startedAt,
		Cached:    cached,
	}
}

// AcquisitionFailed is raised when an acquisition ends in the Failed state
type AcquisitionFailed struct {
	BaseEvent
	Key       domain.AssetKey
	Kind      domain.ErrorKind
	Error     string
	Bytes     int64
	StartedAt time.Time
}

// EventName returns the event name
func (e AcquisitionFailed) EventName() string {
	return NameAcquisitionFailed
}

// NewAcquisitionFailed creates a new AcquisitionFailed event
func NewAcquisitionFailed(key domain.AssetKey, err error, bytes int64, startedAt time.Time) AcquisitionFailed {
	kind, _ := domain.KindOf(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return AcquisitionFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Key:       key,
		Kind:      kind,
		Error:     msg,
		Bytes:     bytes,
		StartedAt: startedAt,
	}
}

// AcquisitionCancelled is raised when a caller cancels an in-flight download
type AcquisitionCancelled struct {
	BaseEvent
	Key       domain.AssetKey
	Bytes     int64
	StartedAt time.Time
}

// EventName returns the event name
func (e AcquisitionCancelled) EventName() string {
	return NameAcquisitionCancelled
}

// NewAcquisitionCancelled creates a new AcquisitionCancelled event
func NewAcquisitionCancelled(key domain.AssetKey, bytes int64, startedAt time.Time) AcquisitionCancelled {
	return AcquisitionCancelled{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Key:       key,
		Bytes:     bytes,
		StartedAt: startedAt,
	}
}
