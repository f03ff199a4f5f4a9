package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Searcher pages through the asset listing
type Searcher interface {
	Search(ctx context.Context, query string, page int) ([]domain.AssetSummary, error)
}

// ThumbnailFetcher resolves a thumbnail URL to a cached file
type ThumbnailFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// CatalogHandler handles listing, thumbnail and history requests
type CatalogHandler struct {
	browser    Searcher
	thumbnails ThumbnailFetcher
	history    port.HistoryRepository
	hosts      map[string]struct{}
	logger     *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler. Thumbnails are only
// fetched from hosts.
func NewCatalogHandler(browser Searcher, thumbnails ThumbnailFetcher, history port.HistoryRepository, hosts []string, logger *zap.Logger) *CatalogHandler {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return &CatalogHandler{
		browser:    browser,
		thumbnails: thumbnails,
		history:    history,
		hosts:      allowed,
		logger:     logger,
	}
}

// HandleSearch handles GET /api/search?q=&page=
func (h *CatalogHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		writeError(w, http.StatusServiceUnavailable, "search not available")
		return
	}

	page, err := intParam(r, "page", 0)
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}

	query := r.URL.Query().Get("q")
	assets, err := h.browser.Search(r.Context(), query, page)
	if err != nil {
		h.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	if assets == nil {
		assets = []domain.AssetSummary{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// HandleThumbnail serves a cached thumbnail, fetching it on demand:
// GET /api/thumbnails?url=
func (h *CatalogHandler) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.thumbnails == nil {
		writeError(w, http.StatusServiceUnavailable, "thumbnails not available")
		return
	}

	raw := r.URL.Query().Get("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	if !h.allowedHost(u) {
		h.logger.Warn("thumbnail host rejected", zap.String("url", raw))
		writeError(w, http.StatusForbidden, "thumbnail host not allowed")
		return
	}

	path, err := h.thumbnails.Fetch(r.Context(), raw)
	if err != nil {
		h.logger.Warn("thumbnail fetch failed", zap.String("url", raw), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	serveFile(w, r, path, h.logger)
}

// allowedHost reports whether u points at a configured thumbnail host
func (h *CatalogHandler) allowedHost(u *url.URL) bool {
	if _, ok := h.hosts[strings.ToLower(u.Host)]; ok {
		return true
	}
	_, ok := h.hosts[strings.ToLower(u.Hostname())]
	return ok
}

// HandleHistory handles GET /api/history?limit=
func (h *CatalogHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}

	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.ListAcquisitions(limit)
	if err != nil {
		h.logger.Error("failed to list acquisitions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list acquisitions")
		return
	}
	if records == nil {
		records = []*domain.AcquisitionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// intParam reads an optional integer query parameter
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
