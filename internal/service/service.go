// Package service holds the report lifecycle rules: scoring write-back,
// expiry, admin override, chat and evidence links.
package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/repository"
)

const (
	DefaultExpiryWindow    = 4 * time.Hour
	DefaultMessageCooldown = 30 * time.Second
	DefaultMaxMessageLen   = 280
)

// Clock returns the current time.
type Clock func() time.Time

// now is the clock reading every service stores: UTC at the microsecond
// precision PostgreSQL keeps.
func (c Clock) now() time.Time {
	if c == nil {
		c = time.Now
	}
	return c().UTC().Truncate(time.Microsecond)
}

// Notifier is told when the stored status of a report becomes confirmed.
type Notifier interface {
	ReportConfirmed(ctx context.Context, report *models.ReportView)
}

type nopNotifier struct{}

func (nopNotifier) ReportConfirmed(context.Context, *models.ReportView) {}

// reportGate loads reports on behalf of every operation that needs one and
// repairs the expiry invariant on the way.
type reportGate struct {
	reports repository.ReportRepository
	expiry  time.Duration
	logger  *zap.Logger
}

func (g *reportGate) load(ctx context.Context, id string) (*models.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReportNotFound
	}
	report, err := g.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// stale reports whether the report has been idle for the whole window.
func (g *reportGate) stale(report *models.Report, now time.Time) bool {
	return now.Sub(report.LastActivityAt) >= g.expiry
}

// loadFresh is load plus expiry: a stale report still marked active is moved
// to expired before it is returned.
func (g *reportGate) loadFresh(ctx context.Context, id string, now time.Time) (*models.Report, error) {
	report, err := g.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != models.StatusExpired && g.stale(report, now) {
		expired, err := g.reports.ExpireIfStale(ctx, id, now.Add(-g.expiry))
		if err != nil {
			return nil, err
		}
		if !expired {
			// someone bumped activity or expired it first
			return g.load(ctx, id)
		}
		g.logger.Info("Report expired on access", zap.String("report_id", id))
		report.Status = models.StatusExpired
	}
	return report, nil
}

// open returns a report that still accepts votes, messages and sources.
func (g *reportGate) open(ctx context.Context, id string, now time.Time) (*models.Report, error) {
	report, err := g.loadFresh(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if report.Status == models.StatusExpired {
		return nil, ErrReportExpired
	}
	return report, nil
}

// validLink accepts absolute http(s) URLs only.
func validLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
