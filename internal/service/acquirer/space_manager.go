package acquirer

import (
	"github.com/vertextoedge/texture-cache/internal/port"
)

// SpaceManager checks cache size and disk usage limits before a download
type SpaceManager struct {
	fs              port.FileSystem
	maxCacheSize    int64   // 0 means unlimited
	maxDiskUsagePct float64 // 0 disables the disk check
}

// NewSpaceManager creates a new SpaceManager
func NewSpaceManager(fs port.FileSystem, maxCacheSize int64, maxDiskUsagePct float64) *SpaceManager {
	return &SpaceManager{
		fs:              fs,
		maxCacheSize:    maxCacheSize,
		maxDiskUsagePct: maxDiskUsagePct,
	}
}

// CheckSpace checks whether an archive of the given size fits. The archive
// and its extracted copy coexist until extraction finishes, so twice the
// archive size is needed. Unknown sizes (<= 0) only check current usage.
func (sm *SpaceManager) CheckSpace(archiveSize int64) (*port.SpaceCheckResult, error) {
	needed := int64(0)
	if archiveSize > 0 {
		needed = 2 * archiveSize
	}

	result := &port.SpaceCheckResult{
		NeededBytes:       needed,
		MaxCacheSizeBytes: sm.maxCacheSize,
		MaxDiskUsagePct:   sm.maxDiskUsagePct,
	}

	if sm.maxCacheSize > 0 {
		cacheSize, err := sm.fs.GetCacheSize()
		if err != nil {
			return nil, err
		}
		result.CacheSizeBytes = cacheSize

		if cacheSize+needed > sm.maxCacheSize {
			result.LimitedByCacheSize = true
			return result, nil
		}
	}

	if sm.maxDiskUsagePct > 0 {
		usage, err := sm.fs.GetDiskUsage()
		if err != nil {
			return nil, err
		}
		result.DiskUsedPct = usage.UsedPct

		if usage.UsedPct >= sm.maxDiskUsagePct {
			result.LimitedByDiskUsage = true
			return result, nil
		}

		if usage.Total > 0 {
			newUsedPct := float64(usage.Used+uint64(needed)) / float64(usage.Total) * 100
			if newUsedPct >= sm.maxDiskUsagePct {
				result.LimitedByDiskUsage = true
				return result, nil
			}
		}
	}

	result.HasSpace = true
	return result, nil
}

// Ensure SpaceManager implements port.SpaceManager
var _ port.SpaceManager = (*SpaceManager)(nil)
