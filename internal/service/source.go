package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/repository"
)

type SourceService interface {
	Add(ctx context.Context, reportID string, in models.AddSourceInput) (*models.Source, error)
	List(ctx context.Context, reportID string) ([]models.Source, error)
}

type sourceService struct {
	reports repository.ReportRepository
	sources repository.SourceRepository
	tx      repository.Transactor
	gate    *reportGate
	clock   Clock
	logger  *zap.Logger
}

func NewSourceService(
	reports repository.ReportRepository,
	sources repository.SourceRepository,
	tx repository.Transactor,
	expiry time.Duration,
	clock Clock,
	logger *zap.Logger,
) SourceService {
	if expiry <= 0 {
		expiry = DefaultExpiryWindow
	}
	return &sourceService{
		reports: reports,
		sources: sources,
		tx:      tx,
		gate:    &reportGate{reports: reports, expiry: expiry, logger: logger},
		clock:   clock,
		logger:  logger,
	}
}

func (s *sourceService) Add(ctx context.Context, reportID string, in models.AddSourceInput) (*models.Source, error) {
	link := strings.TrimSpace(in.URL)
	fingerprint := strings.TrimSpace(in.AddedByFingerprint)
	if link == "" || fingerprint == "" {
		return nil, invalid("url", "url and added_by_fingerprint are required")
	}
	if !validLink(link) {
		return nil, invalid("url", "url must be an absolute http or https URL")
	}

	now := s.clock.now()
	if _, err := s.gate.open(ctx, reportID, now); err != nil {
		return nil, err
	}

	src := &models.Source{
		ID:                 uuid.NewString(),
		ReportID:           reportID,
		URL:                link,
		AddedByFingerprint: fingerprint,
		CreatedAt:          now,
	}
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.sources.Insert(ctx, tx, src); err != nil {
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
		if errors.Is(err, ErrReportExpired) {
			return nil, err
		}
		return nil, wrap("add source", err)
	}

	s.logger.Info("Source added", zap.String("report_id", reportID), zap.String("url", link))
	return src, nil
}

func (s *sourceService) List(ctx context.Context, reportID string) ([]models.Source, error) {
	if _, err := s.gate.load(ctx, reportID); err != nil {
		return nil, err
	}
	sources, err := s.sources.ListFor(ctx, reportID)
	if err != nil {
		return nil, wrap("list sources", err)
	}
	if sources == nil {
		sources = []models.Source{}
	}
	return sources, nil
}
