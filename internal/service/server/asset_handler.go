package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
	"github.com/vertextoedge/texture-cache/internal/service/acquirer"
)

// AssetCache is the acquisition surface used by the API
type AssetCache interface {
	Ensure(key domain.AssetKey) (*acquirer.Handle, error)
	Cancel(h *acquirer.Handle) bool
	Lookup(key domain.AssetKey) (*acquirer.Handle, bool)
	Status(key domain.AssetKey) (domain.Progress, bool)
	Snapshot() []domain.Progress
}

// AssetHandler handles asset acquisition requests
type AssetHandler struct {
	assets    AssetCache
	materials port.MaterialBuilder
	logger    *zap.Logger
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(assets AssetCache, materials port.MaterialBuilder, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{
		assets:    assets,
		materials: materials,
		logger:    logger,
	}
}

type cancelResponse struct {
	Cancelled bool            `json:"cancelled"`
	Progress  domain.Progress `json:"progress"`
}

// HandleList returns every attempt known to this process
func (h *AssetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assets.Snapshot())
}

// HandleEnsure starts an acquisition: POST /api/assets/{id}/{res}.
// Responds 200 when the asset is already Ready and 202 otherwise.
func (h *AssetHandler) HandleEnsure(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	handle, err := h.assets.Ensure(key)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	p := handle.Progress()
	status := http.StatusAccepted
	if p.State == domain.StateReady {
		status = http.StatusOK
	}
	writeJSON(w, status, p)
}

// HandlePoll reports progress: GET /api/assets/{id}/{res}
func (h *AssetHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	p, ok := h.assets.Status(key)
	if !ok {
		writeError(w, http.StatusNotFound, "asset not requested")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleCancel cancels a running download: DELETE /api/assets/{id}/{res}
func (h *AssetHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	handle, ok := h.assets.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "asset not requested")
		return
	}

	cancelled := h.assets.Cancel(handle)
	if cancelled {
		h.logger.Info("acquisition cancelled via API", zap.String("key", key.String()))
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled, Progress: handle.Progress()})
}

// HandleMaterial describes the material of a Ready asset:
// GET /api/assets/{id}/{res}/material
func (h *AssetHandler) HandleMaterial(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	dir, ok := h.readyDir(w, key)
	if !ok {
		return
	}

	material, err := h.materials.Build(dir, key.Identifier)
	if err != nil {
		h.logger.Error("failed to build material", zap.String("key", key.String()), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, material)
}

// HandleFile serves one extracted texture: GET /api/assets/{id}/{res}/files/{name}
func (h *AssetHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	key, ok := parseKey(w, r)
	if !ok {
		return
	}

	name := r.PathValue("name")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	dir, ok := h.readyDir(w, key)
	if !ok {
		return
	}
	serveFile(w, r, filepath.Join(dir, name), h.logger)
}

// readyDir returns the extraction directory of a Ready key, writing an
// error response otherwise
func (h *AssetHandler) readyDir(w http.ResponseWriter, key domain.AssetKey) (string, bool) {
	p, ok := h.assets.Status(key)
	if !ok {
		writeError(w, http.StatusNotFound, "asset not requested")
		return "", false
	}
	if p.State != domain.StateReady {
		writeError(w, http.StatusConflict, fmt.Sprintf("%s: state is %s", domain.ErrNotReady, p.State))
		return "", false
	}
	return p.LocalPath, true
}

// parseKey reads {id} and {res} from the request path
func parseKey(w http.ResponseWriter, r *http.Request) (domain.AssetKey, bool) {
	res, err := domain.ParseResolution(r.PathValue("res"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.AssetKey{}, false
	}
	key, err := domain.NewAssetKey(r.PathValue("id"), res)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.AssetKey{}, false
	}
	return key, true
}

// statusFor maps an error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidKey), errors.Is(err, domain.ErrInvalidResolution):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, acquirer.ErrClosed):
		return http.StatusServiceUnavailable
	case domain.IsNetwork(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// serveFile serves a file from the cache directory
func serveFile(w http.ResponseWriter, r *http.Request, fullPath string, logger *zap.Logger) {
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "file not found")
		} else {
			logger.Error("failed to open file", zap.String("path", fullPath), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "file not available")
		}
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		logger.Error("failed to stat file", zap.String("path", fullPath), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "file not available")
		return
	}

	if stat.IsDir() {
		writeError(w, http.StatusBadRequest, "cannot download directory")
		return
	}

	// Determine content type
	filename := filepath.Base(fullPath)
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", filename))
	http.ServeContent(w, r, filename, stat.ModTime(), f)

	logger.Debug("file served from cache",
		zap.String("path", fullPath),
		zap.String("size", formatSize(stat.Size())))
}

// formatSize formats file size in human-readable format
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
