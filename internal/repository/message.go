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

type MessageRepository interface {
	ClaimSlot(ctx context.Context, q sqlx.ExtContext, reportID, sender string, now, cutoff time.Time) (*models.Participant, bool, error)
	Insert(ctx context.Context, q sqlx.ExtContext, msg *models.Message) error
	ListFor(ctx context.Context, reportID string, since *time.Time) ([]models.Message, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type messageRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewMessageRepository(db *sqlx.DB, logger *zap.Logger) MessageRepository {
	return &messageRepository{db: db, logger: logger}
}

// ClaimSlot reserves the right for sender to post on a report at now.
//
// A single upsert on chat_participants either registers a new sender with
// the next free alias, or moves last_message_at forward when the previous
// message is at or before cutoff. When the cooldown is still running the
// upsert touches no row and the participant is returned with claimed=false,
// carrying the last send time for the retry hint.
func (r *messageRepository) ClaimSlot(ctx context.Context, q sqlx.ExtContext, reportID, sender string, now, cutoff time.Time) (*models.Participant, bool, error) {
	claim := q.Rebind(`
		INSERT INTO chat_participants (report_id, sender_fingerprint, alias_number, last_message_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(alias_number), 0) + 1 FROM chat_participants WHERE report_id = ?), ?)
		ON CONFLICT (report_id, sender_fingerprint)
		DO UPDATE SET last_message_at = excluded.last_message_at
		WHERE chat_participants.last_message_at <= ?
	`)
	result, err := q.ExecContext(ctx, claim, reportID, sender, reportID, now.UTC(), cutoff.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim chat slot: %w", err)
	}
	claimed, err := affected(result)
	if err != nil {
		return nil, false, err
	}

	var p models.Participant
	query := q.Rebind(`SELECT report_id, sender_fingerprint, alias_number, last_message_at
	          FROM chat_participants WHERE report_id = ? AND sender_fingerprint = ?`)
	if err := sqlx.GetContext(ctx, q, &p, query, reportID, sender); err != nil {
		return nil, false, fmt.Errorf("failed to read chat participant: %w", err)
	}
	return &p, claimed, nil
}

func (r *messageRepository) Insert(ctx context.Context, q sqlx.ExtContext, msg *models.Message) error {
	query := q.Rebind(`INSERT INTO messages (id, report_id, sender_fingerprint, alias_number, content, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		msg.ID, msg.ReportID, msg.SenderFingerprint, msg.AliasNumber, msg.Content, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListFor returns the chat of a report oldest first, optionally only the
// messages strictly newer than since.
func (r *messageRepository) ListFor(ctx context.Context, reportID string, since *time.Time) ([]models.Message, error) {
	query := `SELECT id, report_id, sender_fingerprint, alias_number, content, created_at
	          FROM messages WHERE report_id = ?`
	args := []interface{}{reportID}
	if since != nil {
		query += ` AND created_at > ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY created_at, id`

	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list messages for report %s: %w", reportID, err)
	}
	return messages, nil
}

// GetByID returns nil, nil when the message does not exist.
func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	query := r.db.Rebind(`SELECT id, report_id, sender_fingerprint, alias_number, content, created_at
	          FROM messages WHERE id = ?`)
	err := r.db.GetContext(ctx, &msg, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return &msg, nil
}

func (r *messageRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`DELETE FROM messages WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete message", zap.String("message_id", id), zap.Error(err))
		return false, err
	}
	return affected(result)
}
