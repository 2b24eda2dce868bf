package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sjawhar/interview-coach/internal/model"
)

// Uploader copies a rendered report somewhere off the machine.
type Uploader interface {
	Upload(ctx context.Context, localPath, name string) error
}

// Archive persists ended interviews. Every part is optional: a nil store
// skips the database, a nil writer skips the report and the upload.
type Archive struct {
	store    *SQLiteStore
	reports  *ReportWriter
	uploader Uploader
	logger   *slog.Logger
}

func NewArchive(store *SQLiteStore, reports *ReportWriter, uploader Uploader, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: store, reports: reports, uploader: uploader, logger: logger}
}

// Archive stores rec under a fresh id. Sessions restarted on the same
// connection share a session id, so it is not used as the key.
func (a *Archive) Archive(ctx context.Context, rec model.Record) error {
	id := uuid.NewString()
	var errs []error

	if a.store != nil {
		if err := a.store.SaveInterview(ctx, id, rec); err != nil {
			errs = append(errs, err)
		}
	}

	if a.reports != nil {
		path, err := a.reports.Write(id, rec)
		if err != nil {
			errs = append(errs, err)
		} else {
			if a.store != nil {
				if err := a.store.SetReportPath(ctx, id, path); err != nil && !errors.Is(err, ErrNotFound) {
					errs = append(errs, err)
				}
			}
			if a.uploader != nil {
				if err := a.uploader.Upload(ctx, path, "interview-coach-"+ReportName(id, rec)); err != nil {
					errs = append(errs, fmt.Errorf("upload report: %w", err))
				}
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Info("interview archived", "interview_id", id, "session_id", rec.SessionID, "overall", rec.Feedback.Overall)
	return nil
}
