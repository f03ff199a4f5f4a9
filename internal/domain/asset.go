package domain

import (
	"fmt"
	"strings"
)

// Resolution is the quality tier of an asset archive
type Resolution string

// Supported resolutions
const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
	Resolution8K Resolution = "8K"
)

// Resolutions lists every supported resolution in ascending order
var Resolutions = []Resolution{Resolution1K, Resolution2K, Resolution4K, Resolution8K}

// ParseResolution parses a resolution tag, case-insensitively
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return r, nil
}

// Valid reports whether r is one of the supported resolutions
func (r Resolution) Valid() bool {
	switch r {
	case Resolution1K, Resolution2K, Resolution4K, Resolution8K:
		return true
	}
	return false
}

// String returns the resolution tag
func (r Resolution) String() string {
	return string(r)
}

// AssetKey identifies a unique cache entry
type AssetKey struct {
	Identifier string
	Resolution Resolution
}

// NewAssetKey creates a validated AssetKey
func NewAssetKey(identifier string, resolution Resolution) (AssetKey, error) {
	key := AssetKey{Identifier: identifier, Resolution: resolution}
	if err := key.Validate(); err != nil {
		return AssetKey{}, err
	}
	return key, nil
}

// Validate checks the key invariants.
// Identifiers become file names, so path separators are rejected.
func (k AssetKey) Validate() error {
	if k.Identifier == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalidKey)
	}
	if strings.ContainsAny(k.Identifier, `/\`) || k.Identifier == "." || k.Identifier == ".." {
		return fmt.Errorf("%w: identifier %q is not a plain name", ErrInvalidKey, k.Identifier)
	}
	if !k.Resolution.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidResolution, k.Resolution)
	}
	return nil
}

// BaseName returns the shared archive and extraction directory name, e.g. Bricks001_2K
func (k AssetKey) BaseName() string {
	return k.Identifier + "_" + string(k.Resolution)
}

// String implements fmt.Stringer
func (k AssetKey) String() string {
	return k.BaseName()
}

// AssetSummary is one entry of a listing page
type AssetSummary struct {
	Identifier   string `json:"identifier"`
	Link         string `json:"link"`
	ThumbnailURL string `json:"thumbnail_url"`
}
