package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/repository"
)

type ChatService interface {
	Post(ctx context.Context, reportID string, in models.PostMessageInput) (*models.MessageView, error)
	List(ctx context.Context, reportID string, since *time.Time) ([]*models.MessageView, error)
	Delete(ctx context.Context, reportID, messageID string) error
}

type ChatServiceConfig struct {
	ExpiryWindow time.Duration
	Cooldown     time.Duration
	MaxLength    int
	Clock        Clock
}

type chatService struct {
	reports   repository.ReportRepository
	messages  repository.MessageRepository
	tx        repository.Transactor
	gate      *reportGate
	cooldown  time.Duration
	maxLength int
	clock     Clock
	logger    *zap.Logger
}

func NewChatService(
	reports repository.ReportRepository,
	messages repository.MessageRepository,
	tx repository.Transactor,
	cfg ChatServiceConfig,
	logger *zap.Logger,
) ChatService {
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultMessageCooldown
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxMessageLen
	}
	return &chatService{
		reports:   reports,
		messages:  messages,
		tx:        tx,
		gate:      &reportGate{reports: reports, expiry: cfg.ExpiryWindow, logger: logger},
		cooldown:  cfg.Cooldown,
		maxLength: cfg.MaxLength,
		clock:     cfg.Clock,
		logger:    logger,
	}
}

func (s *chatService) Post(ctx context.Context, reportID string, in models.PostMessageInput) (*models.MessageView, error) {
	content := strings.TrimSpace(in.Content)
	sender := strings.TrimSpace(in.SenderFingerprint)
	if content == "" || sender == "" {
		return nil, invalid("content", "content and sender_fingerprint are required")
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, invalid("content", "content must be %d characters or less", s.maxLength)
	}

	now := s.clock.now()
	report, err := s.gate.open(ctx, reportID, now)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:                uuid.NewString(),
		ReportID:          reportID,
		SenderFingerprint: sender,
		Content:           content,
		CreatedAt:         now,
	}
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		participant, claimed, err := s.messages.ClaimSlot(ctx, tx, reportID, sender, now, now.Add(-s.cooldown))
		if err != nil {
			return err
		}
		if !claimed {
			return &RateLimitError{RetryAfter: participant.LastMessageAt.Add(s.cooldown).Sub(now)}
		}
		msg.AliasNumber = participant.AliasNumber

		if err := s.messages.Insert(ctx, tx, msg); err != nil {
			return err
		}
		touched, err := s.reports.TouchActivity(ctx, tx, reportID, now)
		if err != nil {
			return err
		}
		if !touched {
			return ErrReportExpired
		}
		return nil
	})
	if err != nil {
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) || errors.Is(err, ErrReportExpired) {
			return nil, err
		}
		return nil, wrap("post message", err)
	}

	s.logger.Debug("Message posted",
		zap.String("report_id", reportID),
		zap.Int("alias", msg.AliasNumber))
	return newMessageView(msg, report), nil
}

func (s *chatService) List(ctx context.Context, reportID string, since *time.Time) ([]*models.MessageView, error) {
	report, err := s.gate.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListFor(ctx, reportID, since)
	if err != nil {
		return nil, wrap("list messages", err)
	}

	views := make([]*models.MessageView, len(messages))
	for i := range messages {
		views[i] = newMessageView(&messages[i], report)
	}
	return views, nil
}

// Delete removes a message from the chat of reportID; a message that
// belongs to another report is reported as missing.
func (s *chatService) Delete(ctx context.Context, reportID, messageID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return ErrMessageNotFound
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return wrap("get message", err)
	}
	if msg == nil || msg.ReportID != reportID {
		return ErrMessageNotFound
	}
	deleted, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return wrap("delete message", err)
	}
	if !deleted {
		return ErrMessageNotFound
	}
	s.logger.Info("Message deleted by admin",
		zap.String("report_id", reportID),
		zap.String("message_id", messageID))
	return nil
}

func newMessageView(msg *models.Message, report *models.Report) *models.MessageView {
	isOp := report.CreatorFingerprint != nil && *report.CreatorFingerprint == msg.SenderFingerprint
	return &models.MessageView{
		ID:          msg.ID,
		ReportID:    msg.ReportID,
		Content:     msg.Content,
		AliasNumber: msg.AliasNumber,
		IsOp:        isOp,
		CreatedAt:   msg.CreatedAt.UTC(),
	}
}
