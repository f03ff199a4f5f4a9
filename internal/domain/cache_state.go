package domain

import "fmt"

// CacheState is the lifecycle state of a cache entry
type CacheState int32

// Cache states. Ready and Failed are terminal.
const (
	StateNotStarted CacheState = iota
	StateDownloading
	StateExtracting
	StateReady
	StateFailed
)

var cacheStateNames = map[CacheState]string{
	StateNotStarted:  "not_started",
	StateDownloading: "downloading",
	StateExtracting:  "extracting",
	StateReady:       "ready",
	StateFailed:      "failed",
}

// String returns the wire name of the state
func (s CacheState) String() string {
	if name, ok := cacheStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (s CacheState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *CacheState) UnmarshalText(text []byte) error {
	for state, name := range cacheStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown cache state %q", text)
}

// Terminal returns true for Ready and Failed
func (s CacheState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Active returns true while an acquisition is downloading or extracting
func (s CacheState) Active() bool {
	return s == StateDownloading || s == StateExtracting
}

// Progress is a point-in-time view of a cache entry
type Progress struct {
	Key             AssetKey   `json:"-"`
	Identifier      string     `json:"identifier"`
	Resolution      Resolution `json:"resolution"`
	State           CacheState `json:"state"`
	Fraction        float64    `json:"fraction"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	BytesTotal      int64      `json:"bytes_total,omitempty"` // 0 when unknown
	LocalPath       string     `json:"local_path,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ComputeFraction derives the progress fraction for a state.
// An unknown total reports 0 until extraction starts. Failed keeps the
// fraction reached before the failure.
func ComputeFraction(state CacheState, downloaded, total int64) float64 {
	switch state {
	case StateExtracting, StateReady:
		return 1.0
	case StateDownloading, StateFailed:
		if total <= 0 {
			return 0
		}
		f := float64(downloaded) / float64(total)
		if f > 1 {
			f = 1
		}
		return f
	default:
		return 0
	}
}
