package reporting

import (
	"bytes"
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ehr/surveillance/internal/platform/blobstore"
	"github.com/ehr/surveillance/internal/platform/notification"
)

// ArchiveCategory is the blob category exported reports are stored under.
const ArchiveCategory = "reports"

// Archiver keeps a copy of every exported artifact and announces it on the
// archive channel. Failures are logged and never surface to the caller.
type Archiver struct {
	store    blobstore.BlobStore
	notifier *notification.Manager
	logger   zerolog.Logger
}

// NewArchiver returns an Archiver. A nil notifier disables the announcement.
func NewArchiver(store blobstore.BlobStore, notifier *notification.Manager, logger zerolog.Logger) *Archiver {
	return &Archiver{store: store, notifier: notifier, logger: logger}
}

// Archive stores art and returns its metadata, or nil when archiving failed.
func (a *Archiver) Archive(ctx context.Context, reportID string, format Format, art *Artifact) *blobstore.BlobMetadata {
	if a == nil || a.store == nil {
		return nil
	}
	meta, err := a.store.Upload(ctx, blobstore.BlobMetadata{
		FileName:    art.FileName,
		ContentType: art.ContentType,
		Category:    ArchiveCategory,
		Tags:        map[string]string{"report": reportID, "format": string(format)},
	}, bytes.NewReader(art.Body))
	if err != nil {
		a.logger.Warn().Err(err).Str("report", reportID).Msg("report archive failed")
		return nil
	}

	if a.notifier != nil {
		_, err := a.notifier.Dispatch(ctx, notification.TemplateReportArchived, reportID, map[string]string{
			"report":       reportID,
			"file_name":    meta.FileName,
			"content_type": meta.ContentType,
			"size":         strconv.FormatInt(meta.Size, 10),
			"blob_id":      meta.ID,
			"key":          meta.Key,
		})
		if err != nil {
			a.logger.Warn().Err(err).Str("report", reportID).Str("blob_id", meta.ID).Msg("archive notification failed")
		}
	}
	return meta
}
