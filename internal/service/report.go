package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/repository"
	"incidentmap/internal/scoring"
)

// ReportService is the sole writer of report status, activity time and
// admin lock.
type ReportService interface {
	Create(ctx context.Context, in models.CreateReportInput) (*models.ReportView, error)
	Get(ctx context.Context, id string) (*models.ReportView, error)
	List(ctx context.Context, box *models.BoundingBox) ([]*models.ReportView, error)
	CastVote(ctx context.Context, reportID string, in models.CastVoteInput) (*models.ReportView, error)
	Update(ctx context.Context, id string, in models.UpdateReportInput) (*models.ReportView, error)
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context) (int64, error)
}

type ReportServiceConfig struct {
	ExpiryWindow time.Duration
	Clock        Clock
	Notifier     Notifier
}

type reportService struct {
	reports  repository.ReportRepository
	votes    repository.VoteRepository
	tx       repository.Transactor
	gate     *reportGate
	clock    Clock
	notifier Notifier
	logger   *zap.Logger
}

func NewReportService(
	reports repository.ReportRepository,
	votes repository.VoteRepository,
	tx repository.Transactor,
	cfg ReportServiceConfig,
	logger *zap.Logger,
) ReportService {
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	return &reportService{
		reports:  reports,
		votes:    votes,
		tx:       tx,
		gate:     &reportGate{reports: reports, expiry: cfg.ExpiryWindow, logger: logger},
		clock:    cfg.Clock,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

func (s *reportService) Create(ctx context.Context, in models.CreateReportInput) (*models.ReportView, error) {
	reportType := models.ReportType(strings.TrimSpace(in.Type))
	if in.Type == "" || in.Latitude == nil || in.Longitude == nil {
		return nil, invalid("type", "type, latitude, and longitude are required")
	}
	if !reportType.Valid() {
		return nil, invalid("type", "type must be one of %s", joinTypes())
	}
	if *in.Latitude < -90 || *in.Latitude > 90 {
		return nil, invalid("latitude", "latitude must be between -90 and 90")
	}
	if *in.Longitude < -180 || *in.Longitude > 180 {
		return nil, invalid("longitude", "longitude must be between -180 and 180")
	}
	sourceURL := strings.TrimSpace(in.SourceURL)
	if sourceURL != "" && !validLink(sourceURL) {
		return nil, invalid("source_url", "source_url must be an absolute http or https URL")
	}

	now := s.clock.now()
	report := &models.Report{
		ID:                 uuid.NewString(),
		Type:               reportType,
		Latitude:           *in.Latitude,
		Longitude:          *in.Longitude,
		Description:        optional(strings.TrimSpace(in.Description)),
		SourceURL:          optional(sourceURL),
		CreatorFingerprint: optional(strings.TrimSpace(in.CreatorFingerprint)),
		Status:             models.StatusUnconfirmed,
		CreatedAt:          now,
		LastActivityAt:     now,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, wrap("create report", err)
	}

	s.logger.Info("Report created",
		zap.String("report_id", report.ID),
		zap.String("type", string(report.Type)))
	return newReportView(report, scoring.Result{}, models.ActivityCounts{}), nil
}

func (s *reportService) Get(ctx context.Context, id string) (*models.ReportView, error) {
	now := s.clock.now()
	report, err := s.gate.loadFresh(ctx, id, now)
	if err != nil {
		return nil, err
	}

	votes, err := s.votes.AllFor(ctx, id)
	if err != nil {
		return nil, wrap("load votes", err)
	}
	counts, err := s.reports.ActivityCounts(ctx, []string{id})
	if err != nil {
		return nil, wrap("count activity", err)
	}

	res := scoring.Compute(scoring.Ballots(votes), now)
	view := newReportView(report, res, counts[id])
	s.applyDerived(ctx, report, view, res)
	return view, nil
}

// List sweeps stale reports to expired, then recomputes every remaining
// report inside box from its votes.
func (s *reportService) List(ctx context.Context, box *models.BoundingBox) ([]*models.ReportView, error) {
	now := s.clock.now()
	if _, err := s.sweep(ctx, now); err != nil {
		return nil, err
	}

	reports, err := s.reports.List(ctx, box)
	if err != nil {
		return nil, wrap("list reports", err)
	}
	ids := make([]string, len(reports))
	for i, r := range reports {
		ids[i] = r.ID
	}

	votes, err := s.votes.AllForReports(ctx, ids)
	if err != nil {
		return nil, wrap("load votes", err)
	}
	counts, err := s.reports.ActivityCounts(ctx, ids)
	if err != nil {
		return nil, wrap("count activity", err)
	}

	views := make([]*models.ReportView, 0, len(reports))
	for _, report := range reports {
		res := scoring.Compute(scoring.Ballots(votes[report.ID]), now)
		view := newReportView(report, res, counts[report.ID])
		s.applyDerived(ctx, report, view, res)
		views = append(views, view)
	}
	return views, nil
}

func (s *reportService) CastVote(ctx context.Context, reportID string, in models.CastVoteInput) (*models.ReportView, error) {
	voteType := models.VoteType(in.VoteType)
	fingerprint := strings.TrimSpace(in.VoterFingerprint)
	if in.VoteType == "" || fingerprint == "" {
		return nil, invalid("vote_type", "vote_type and voter_fingerprint are required")
	}
	if !voteType.Valid() {
		return nil, invalid("vote_type", "vote_type must be confirm or deny")
	}

	now := s.clock.now()
	report, err := s.gate.open(ctx, reportID, now)
	if err != nil {
		return nil, err
	}

	voted, err := s.votes.HasVoted(ctx, reportID, fingerprint)
	if err != nil {
		return nil, wrap("check vote", err)
	}
	if voted {
		return nil, ErrDuplicateVote
	}

	vote := &models.Vote{
		ID:               uuid.NewString(),
		ReportID:         reportID,
		VoteType:         voteType,
		VoterFingerprint: fingerprint,
		CreatedAt:        now,
	}
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.votes.Insert(ctx, tx, vote); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateVote
			}
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
		if errors.Is(err, ErrDuplicateVote) || errors.Is(err, ErrReportExpired) {
			return nil, err
		}
		return nil, wrap("cast vote", err)
	}
	report.LastActivityAt = now

	votes, err := s.votes.AllFor(ctx, reportID)
	if err != nil {
		return nil, wrap("load votes", err)
	}
	counts, err := s.reports.ActivityCounts(ctx, []string{reportID})
	if err != nil {
		return nil, wrap("count activity", err)
	}

	res := scoring.Compute(scoring.Ballots(votes), now)
	view := newReportView(report, res, counts[reportID])
	s.applyDerived(ctx, report, view, res)

	s.logger.Info("Vote cast",
		zap.String("report_id", reportID),
		zap.String("vote_type", string(voteType)),
		zap.Float64("score", res.Score),
		zap.String("status", string(view.Status)))
	return view, nil
}

// Update applies an admin edit. Every edit locks the report against
// vote-driven status changes unless it carries locked=false, which hands the
// status back to the votes.
func (s *reportService) Update(ctx context.Context, id string, in models.UpdateReportInput) (*models.ReportView, error) {
	report, err := s.gate.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Empty() {
		return nil, invalid("", "no valid fields to update")
	}

	previous := report.Status
	if in.Type != nil {
		t := models.ReportType(*in.Type)
		if !t.Valid() {
			return nil, invalid("type", "type must be one of %s", joinTypes())
		}
		report.Type = t
	}
	if in.Status != nil {
		st := models.ReportStatus(*in.Status)
		if !st.Valid() {
			return nil, invalid("status", "status must be unconfirmed, confirmed, denied, or expired")
		}
		report.Status = st
	}
	if in.Description != nil {
		report.Description = optional(strings.TrimSpace(*in.Description))
	}
	if in.SourceURL != nil {
		link := strings.TrimSpace(*in.SourceURL)
		if link != "" && !validLink(link) {
			return nil, invalid("sourceUrl", "sourceUrl must be an absolute http or https URL")
		}
		report.SourceURL = optional(link)
	}
	if in.CreatedAt != nil {
		report.CreatedAt = in.CreatedAt.UTC()
	}
	if in.LastActivityAt != nil {
		report.LastActivityAt = in.LastActivityAt.UTC()
	}

	now := s.clock.now()
	if in.Locked != nil && !*in.Locked {
		report.AdminLockedAt = nil
	} else {
		report.AdminLockedAt = &now
	}

	if err := s.reports.AdminUpdate(ctx, report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, wrap("update report", err)
	}
	s.logger.Info("Report updated by admin",
		zap.String("report_id", id),
		zap.String("status", string(report.Status)),
		zap.Bool("locked", report.Locked()))

	votes, err := s.votes.AllFor(ctx, id)
	if err != nil {
		return nil, wrap("load votes", err)
	}
	counts, err := s.reports.ActivityCounts(ctx, []string{id})
	if err != nil {
		return nil, wrap("count activity", err)
	}

	res := scoring.Compute(scoring.Ballots(votes), now)
	view := newReportView(report, res, counts[id])
	if report.Locked() {
		if report.Status == models.StatusConfirmed && previous != models.StatusConfirmed {
			s.notifier.ReportConfirmed(ctx, view)
		}
	} else {
		s.applyDerived(ctx, report, view, res)
	}
	return view, nil
}

func (s *reportService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrReportNotFound
	}
	deleted, err := s.reports.Delete(ctx, id)
	if err != nil {
		return wrap("delete report", err)
	}
	if !deleted {
		return ErrReportNotFound
	}
	s.logger.Info("Report deleted by admin", zap.String("report_id", id))
	return nil
}

func (s *reportService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sweep(ctx, s.clock.now())
}

func (s *reportService) sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.reports.ExpireStale(ctx, now.Add(-s.gate.expiry))
	if err != nil {
		return 0, wrap("expire stale reports", err)
	}
	if n > 0 {
		s.logger.Info("Expired stale reports", zap.Int64("count", n))
	}
	return n, nil
}

// applyDerived writes the vote-driven status back unless the report is
// locked or expired; view.Status always ends up as the stored status.
// A failed write is logged only: the next read or vote repairs it.
func (s *reportService) applyDerived(ctx context.Context, report *models.Report, view *models.ReportView, res scoring.Result) {
	if report.Locked() || report.Status == models.StatusExpired || report.Status == res.Status {
		return
	}

	changed, err := s.reports.UpdateDerivedStatus(ctx, report.ID, res.Status)
	if err != nil {
		s.logger.Warn("Failed to persist derived status", zap.String("report_id", report.ID), zap.Error(err))
		return
	}
	if !changed {
		// lost a race with the sweep or an admin edit
		current, err := s.reports.GetByID(ctx, report.ID)
		if err == nil && current != nil {
			report.Status = current.Status
			report.AdminLockedAt = current.AdminLockedAt
			view.Status = current.Status
			view.AdminLockedAt = current.AdminLockedAt
		}
		return
	}

	previous := report.Status
	report.Status = res.Status
	view.Status = res.Status
	s.logger.Info("Report status changed",
		zap.String("report_id", report.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(res.Status)),
		zap.Float64("score", res.Score))
	if res.Status == models.StatusConfirmed {
		s.notifier.ReportConfirmed(ctx, view)
	}
}

func newReportView(r *models.Report, res scoring.Result, counts models.ActivityCounts) *models.ReportView {
	var lockedAt *time.Time
	if r.AdminLockedAt != nil {
		t := r.AdminLockedAt.UTC()
		lockedAt = &t
	}
	return &models.ReportView{
		ID:             r.ID,
		Type:           r.Type,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Description:    r.Description,
		SourceURL:      r.SourceURL,
		Status:         r.Status,
		AdminLockedAt:  lockedAt,
		CreatedAt:      r.CreatedAt.UTC(),
		LastActivityAt: r.LastActivityAt.UTC(),
		Score:          res.Score,
		ConfirmCount:   res.ConfirmCount,
		DenyCount:      res.DenyCount,
		MessageCount:   counts.Messages,
		SourceCount:    counts.Sources,
	}
}

func joinTypes() string {
	names := make([]string, len(models.ReportTypes))
	for i, t := range models.ReportTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
