package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/models"
)

// VoteRepository is the append-only vote ledger. Votes are never updated or
// deleted here; they go away only with their report.
type VoteRepository interface {
	HasVoted(ctx context.Context, reportID, fingerprint string) (bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, vote *models.Vote) error
	AllFor(ctx context.Context, reportID string) ([]models.Vote, error)
	AllForReports(ctx context.Context, reportIDs []string) (map[string][]models.Vote, error)
}

type voteRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewVoteRepository(db *sqlx.DB, logger *zap.Logger) VoteRepository {
	return &voteRepository{db: db, logger: logger}
}

func (r *voteRepository) HasVoted(ctx context.Context, reportID, fingerprint string) (bool, error) {
	var count int
	query := r.db.Rebind(`SELECT COUNT(*) FROM votes WHERE report_id = ? AND voter_fingerprint = ?`)
	if err := r.db.GetContext(ctx, &count, query, reportID, fingerprint); err != nil {
		return false, fmt.Errorf("failed to check existing vote: %w", err)
	}
	return count > 0, nil
}

// Insert appends a vote. The (report_id, voter_fingerprint) unique key makes
// the storage layer reject a second vote from the same identity, even when two
// requests pass the HasVoted check at the same time; that case is ErrDuplicate.
func (r *voteRepository) Insert(ctx context.Context, q sqlx.ExtContext, vote *models.Vote) error {
	query := q.Rebind(`INSERT INTO votes (id, report_id, vote_type, voter_fingerprint, created_at)
	          VALUES (?, ?, ?, ?, ?)
	          ON CONFLICT (report_id, voter_fingerprint) DO NOTHING`)
	result, err := q.ExecContext(ctx, query,
		vote.ID, vote.ReportID, string(vote.VoteType), vote.VoterFingerprint, vote.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Debug("Vote rejected by unique key",
			zap.String("report_id", vote.ReportID))
		return ErrDuplicate
	}
	return nil
}

func (r *voteRepository) AllFor(ctx context.Context, reportID string) ([]models.Vote, error) {
	var votes []models.Vote
	query := r.db.Rebind(`SELECT id, report_id, vote_type, voter_fingerprint, created_at
	          FROM votes WHERE report_id = ? ORDER BY created_at`)
	if err := r.db.SelectContext(ctx, &votes, query, reportID); err != nil {
		return nil, fmt.Errorf("failed to get votes for report %s: %w", reportID, err)
	}
	return votes, nil
}

// AllForReports loads the votes of many reports in one round trip.
func (r *voteRepository) AllForReports(ctx context.Context, reportIDs []string) (map[string][]models.Vote, error) {
	byReport := make(map[string][]models.Vote, len(reportIDs))
	if len(reportIDs) == 0 {
		return byReport, nil
	}

	query, args, err := sqlx.In(`SELECT id, report_id, vote_type, voter_fingerprint, created_at
	          FROM votes WHERE report_id IN (?) ORDER BY created_at`, reportIDs)
	if err != nil {
		return nil, err
	}

	var votes []models.Vote
	if err := r.db.SelectContext(ctx, &votes, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get votes: %w", err)
	}
	for _, v := range votes {
		byReport[v.ReportID] = append(byReport[v.ReportID], v)
	}
	return byReport, nil
}
