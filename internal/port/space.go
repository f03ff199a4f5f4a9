package port

// SpaceCheckResult describes whether an acquisition fits in the cache
type SpaceCheckResult struct {
	HasSpace           bool
	NeededBytes        int64
	CacheSizeBytes     int64
	MaxCacheSizeBytes  int64 // 0 means unlimited
	DiskUsedPct        float64
	MaxDiskUsagePct    float64
	LimitedByCacheSize bool
	LimitedByDiskUsage bool
}

// SpaceManager checks space before an archive is downloaded
type SpaceManager interface {
	// CheckSpace checks whether an archive of the given size, plus its
	// extracted copy, fits within the configured limits
	CheckSpace(archiveSize int64) (*SpaceCheckResult, error)
}
