package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/models"
)

type SourceRepository interface {
	Insert(ctx context.Context, q sqlx.ExtContext, src *models.Source) error
	ListFor(ctx context.Context, reportID string) ([]models.Source, error)
}

type sourceRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSourceRepository(db *sqlx.DB, logger *zap.Logger) SourceRepository {
	return &sourceRepository{db: db, logger: logger}
}

func (r *sourceRepository) Insert(ctx context.Context, q sqlx.ExtContext, src *models.Source) error {
	query := q.Rebind(`INSERT INTO sources (id, report_id, url, added_by_fingerprint, created_at)
	          VALUES (?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query, src.ID, src.ReportID, src.URL, src.AddedByFingerprint, src.CreatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to insert source", zap.String("report_id", src.ReportID), zap.Error(err))
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

func (r *sourceRepository) ListFor(ctx context.Context, reportID string) ([]models.Source, error) {
	var sources []models.Source
	query := r.db.Rebind(`SELECT id, report_id, url, added_by_fingerprint, created_at
	          FROM sources WHERE report_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &sources, query, reportID); err != nil {
		return nil, fmt.Errorf("failed to list sources for report %s: %w", reportID, err)
	}
	return sources, nil
}
