package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/models"
)

const reportColumns = `id, type, latitude, longitude, description, source_url, creator_fingerprint,
	status, created_at, last_activity_at, admin_locked_at`

type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, box *models.BoundingBox) ([]*models.Report, error)
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
	ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error)
	UpdateDerivedStatus(ctx context.Context, id string, status models.ReportStatus) (bool, error)
	TouchActivity(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) (bool, error)
	AdminUpdate(ctx context.Context, report *models.Report) error
	Delete(ctx context.Context, id string) (bool, error)
	ActivityCounts(ctx context.Context, ids []string) (map[string]models.ActivityCounts, error)
}

type reportRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewReportRepository(db *sqlx.DB, logger *zap.Logger) ReportRepository {
	return &reportRepository{db: db, logger: logger}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	query := r.db.Rebind(`INSERT INTO reports (` + reportColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		report.ID, string(report.Type), report.Latitude, report.Longitude, nullString(report.Description),
		nullString(report.SourceURL), nullString(report.CreatorFingerprint), string(report.Status),
		report.CreatedAt.UTC(), report.LastActivityAt.UTC(), nullTime(report.AdminLockedAt))
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when no report has the given id.
func (r *reportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	query := r.db.Rebind(`SELECT ` + reportColumns + ` FROM reports WHERE id = ?`)
	err := r.db.GetContext(ctx, &report, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return &report, nil
}

// List returns every non-expired report, restricted to box when it is set.
func (r *reportRepository) List(ctx context.Context, box *models.BoundingBox) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE status <> ?`
	args := []interface{}{string(models.StatusExpired)}
	if box != nil {
		query += ` AND latitude >= ? AND latitude <= ? AND longitude >= ? AND longitude <= ?`
		args = append(args, box.SouthWestLat, box.NorthEastLat, box.SouthWestLng, box.NorthEastLng)
	}
	query += ` ORDER BY created_at DESC`

	var reports []*models.Report
	if err := r.db.SelectContext(ctx, &reports, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// ExpireStale moves every non-expired report idle since cutoff (or longer)
// to expired. The admin lock is not consulted.
func (r *reportRepository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`UPDATE reports SET status = ? WHERE status <> ? AND last_activity_at <= ?`)
	result, err := r.db.ExecContext(ctx, query, string(models.StatusExpired), string(models.StatusExpired), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale reports: %w", err)
	}
	return result.RowsAffected()
}

func (r *reportRepository) ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	query := r.db.Rebind(`UPDATE reports SET status = ? WHERE id = ? AND status <> ? AND last_activity_at <= ?`)
	result, err := r.db.ExecContext(ctx, query, string(models.StatusExpired), id, string(models.StatusExpired), cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to expire report %s: %w", id, err)
	}
	return affected(result)
}

// UpdateDerivedStatus writes a vote-driven status. Expired and admin-locked
// reports are left alone, so a racing sweep or lock always wins.
func (r *reportRepository) UpdateDerivedStatus(ctx context.Context, id string, status models.ReportStatus) (bool, error) {
	query := r.db.Rebind(`UPDATE reports SET status = ?
	          WHERE id = ? AND status <> ? AND status <> ? AND admin_locked_at IS NULL`)
	result, err := r.db.ExecContext(ctx, query, string(status), id, string(status), string(models.StatusExpired))
	if err != nil {
		r.logger.Error("Failed to update derived status",
			zap.String("report_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return false, err
	}
	return affected(result)
}

// TouchActivity bumps last_activity_at unless the report has expired.
func (r *reportRepository) TouchActivity(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) (bool, error) {
	query := q.Rebind(`UPDATE reports SET last_activity_at = ? WHERE id = ? AND status <> ?`)
	result, err := q.ExecContext(ctx, query, at.UTC(), id, string(models.StatusExpired))
	if err != nil {
		return false, fmt.Errorf("failed to touch report %s: %w", id, err)
	}
	return affected(result)
}

// AdminUpdate overwrites every admin-editable column of the report.
func (r *reportRepository) AdminUpdate(ctx context.Context, report *models.Report) error {
	query := r.db.Rebind(`UPDATE reports
	          SET type = ?, status = ?, description = ?, source_url = ?, created_at = ?,
	              last_activity_at = ?, admin_locked_at = ?
	          WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query,
		string(report.Type), string(report.Status), nullString(report.Description), nullString(report.SourceURL),
		report.CreatedAt.UTC(), report.LastActivityAt.UTC(), nullTime(report.AdminLockedAt), report.ID)
	if err != nil {
		return fmt.Errorf("failed to update report %s: %w", report.ID, err)
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the report; votes, messages and sources cascade.
func (r *reportRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`DELETE FROM reports WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	return affected(result)
}

func (r *reportRepository) ActivityCounts(ctx context.Context, ids []string) (map[string]models.ActivityCounts, error) {
	counts := make(map[string]models.ActivityCounts, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`
		SELECT
			r.id AS report_id,
			(SELECT COUNT(*) FROM messages m WHERE m.report_id = r.id) AS message_count,
			(SELECT COUNT(*) FROM sources s WHERE s.report_id = r.id) AS source_count
		FROM reports r
		WHERE r.id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}

	var rows []models.ActivityCounts
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to count report activity: %w", err)
	}
	for _, row := range rows {
		counts[row.ReportID] = row
	}
	return counts, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// nullString and nullTime flatten optional fields into plain driver values.
func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
