package acquirer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/domain/event"
)

// acquire runs one attempt: download, extract, publish. When prev is set
// it is an attempt being cancelled for the same key; acquire waits for it
// to stop so its archive cleanup cannot race this download.
func (m *Manager) acquire(ctx context.Context, h, prev *Handle) {
	defer m.wg.Done()
	defer close(h.done)
	defer h.cancel()

	m.metrics.started()
	defer m.metrics.finished()

	key := h.key
	if prev != nil {
		<-prev.done
		if dir := m.fs.ExtractDir(key); m.fs.DirExists(dir) {
			m.metrics.observeOutcome(domain.OutcomeCached, 0)
			h.finishReady(dir)
			m.events.Dispatch(event.NewAcquisitionReady(key, dir, 0, 0, h.startedAt, true))
			return
		}
	}

	archivePath := m.fs.ArchivePath(key)
	url := m.source.ArchiveURL(key)

	m.logger.Debug("acquisition started",
		zap.String("key", key.String()),
		zap.String("url", url))
	m.events.Dispatch(event.NewAcquisitionStarted(key, url))

	if err := m.download(ctx, h, archivePath); err != nil {
		if rmErr := m.fs.RemoveFile(archivePath); rmErr != nil {
			m.logger.Warn("failed to remove partial archive",
				zap.String("path", archivePath),
				zap.Error(rmErr))
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			m.cancelled(h)
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !classified(err) {
			err = domain.NewNetworkError("download", err)
		}
		m.failed(h, err)
		return
	}

	h.setState(domain.StateExtracting)

	dir, files, err := m.extract(ctx, h, archivePath)
	if err != nil {
		m.failed(h, err)
		return
	}

	m.metrics.observeOutcome(domain.OutcomeReady, time.Since(h.startedAt).Seconds())
	h.finishReady(dir)
	m.events.Dispatch(event.NewAcquisitionReady(key, dir, h.bytesDownloaded.Load(), files, h.startedAt, false))
}

func (m *Manager) failed(h *Handle, err error) {
	m.metrics.observeOutcome(domain.OutcomeFailed, time.Since(h.startedAt).Seconds())
	h.finishFailed(err)
	m.events.Dispatch(event.NewAcquisitionFailed(h.key, err, h.bytesDownloaded.Load(), h.startedAt))
}

func (m *Manager) cancelled(h *Handle) {
	m.metrics.observeOutcome(domain.OutcomeCancelled, time.Since(h.startedAt).Seconds())
	h.finishCancelled()
	m.events.Dispatch(event.NewAcquisitionCancelled(h.key, h.bytesDownloaded.Load(), h.startedAt))
}

// download streams the archive to archivePath, updating the handle's
// counters after every chunk. Cancellation is checked between chunks.
func (m *Manager) download(ctx context.Context, h *Handle, archivePath string) error {
	body, size, err := m.source.OpenArchive(ctx, h.key)
	if err != nil {
		if !classified(err) && ctx.Err() == nil {
			err = domain.NewNetworkError("download", err)
		}
		return err
	}
	defer body.Close()

	h.recordTotal(size)

	if m.space != nil {
		result, err := m.space.CheckSpace(size)
		if err != nil {
			return domain.NewFilesystemError("check space", err)
		}
		if !result.HasSpace {
			m.logger.Warn("not enough cache space",
				zap.String("key", h.key.String()),
				zap.Int64("needed", result.NeededBytes),
				zap.Int64("cache_size", result.CacheSizeBytes),
				zap.Float64("disk_used_pct", result.DiskUsedPct))
			return domain.NewFilesystemError("check space", domain.ErrInsufficientSpace)
		}
	}

	f, err := m.fs.CreateFile(archivePath)
	if err != nil {
		return domain.NewFilesystemError("create archive", err)
	}

	reader := &progressReader{
		ctx:    ctx,
		reader: body,
		onRead: func(n int) {
			h.bytesDownloaded.Add(int64(n))
			m.metrics.addBytes(n)
		},
	}

	buf := make([]byte, m.cfg.ChunkSize)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				return domain.NewFilesystemError("write archive", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return domain.NewNetworkError("download", readErr)
		}
	}

	if err := f.Close(); err != nil {
		return domain.NewFilesystemError("close archive", err)
	}

	downloaded := h.bytesDownloaded.Load()
	if total := h.bytesTotal.Load(); total > 0 && downloaded < total {
		return domain.NewNetworkError("download",
			fmt.Errorf("%w: got %d of %d bytes", domain.ErrTruncated, downloaded, total))
	}

	m.logger.Debug("archive downloaded",
		zap.String("key", h.key.String()),
		zap.Int64("bytes", downloaded))
	return nil
}

// extract unpacks into the staging directory and renames it into place,
// so the extraction directory only ever appears complete. The archive is
// removed whatever the outcome. Extraction is not cancellable.
func (m *Manager) extract(ctx context.Context, h *Handle, archivePath string) (string, int, error) {
	staging := m.fs.StagingDir(h.key)
	final := m.fs.ExtractDir(h.key)

	if err := m.fs.RemoveAll(staging); err != nil {
		m.fs.RemoveFile(archivePath)
		return "", 0, domain.NewFilesystemError("clear staging dir", err)
	}

	files, err := m.extractor.Extract(context.WithoutCancel(ctx), archivePath, staging)

	if rmErr := m.fs.RemoveFile(archivePath); rmErr != nil {
		m.logger.Warn("failed to remove archive",
			zap.String("path", archivePath),
			zap.Error(rmErr))
	}

	if err != nil {
		m.fs.RemoveAll(staging)
		if !classified(err) {
			err = domain.NewArchiveError("extract", err)
		}
		return "", 0, err
	}

	if err := m.fs.Rename(staging, final); err != nil {
		m.fs.RemoveAll(staging)
		return "", 0, domain.NewFilesystemError("publish extraction dir", err)
	}

	m.logger.Debug("archive extracted",
		zap.String("key", h.key.String()),
		zap.String("dir", final),
		zap.Int("files", len(files)))
	return final, len(files), nil
}

func classified(err error) bool {
	_, ok := domain.KindOf(err)
	return ok
}

// progressReader reports every chunk read and stops once ctx is done
type progressReader struct {
	ctx    context.Context
	reader io.Reader
	onRead func(n int)
}

func (r *progressReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.reader.Read(p)
	if n > 0 {
		r.onRead(n)
	}
	return n, err
}
