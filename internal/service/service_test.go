package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/repository"
	"incidentmap/internal/repository/repotest"
	"incidentmap/internal/service"
)

var t0 = time.Date(2026, 5, 2, 21, 30, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingNotifier struct {
	confirmed []string
}

func (n *recordingNotifier) ReportConfirmed(_ context.Context, r *models.ReportView) {
	n.confirmed = append(n.confirmed, r.ID)
}

type env struct {
	clock    *fakeClock
	notifier *recordingNotifier
	reports  repository.ReportRepository
	svc      service.ReportService
	chat     service.ChatService
	sources  service.SourceService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := repotest.NewDB(t)
	logger := zap.NewNop()

	clock := &fakeClock{t: t0}
	notifier := &recordingNotifier{}
	reports := repository.NewReportRepository(db, logger)
	tx := repository.NewTransactor(db)

	return &env{
		clock:    clock,
		notifier: notifier,
		reports:  reports,
		svc: service.NewReportService(reports, repository.NewVoteRepository(db, logger), tx,
			service.ReportServiceConfig{Clock: clock.Now, Notifier: notifier}, logger),
		chat: service.NewChatService(reports, repository.NewMessageRepository(db, logger), tx,
			service.ChatServiceConfig{Clock: clock.Now}, logger),
		sources: service.NewSourceService(reports, repository.NewSourceRepository(db, logger), tx,
			0, clock.Now, logger),
	}
}

func ptr[T any](v T) *T { return &v }

func (e *env) create(t *testing.T, creator string) *models.ReportView {
	t.Helper()
	view, err := e.svc.Create(context.Background(), models.CreateReportInput{
		Type:               string(models.ReportTypeRoadBlockade),
		Latitude:           ptr(19.43),
		Longitude:          ptr(-99.13),
		CreatorFingerprint: creator,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return view
}

func (e *env) vote(t *testing.T, reportID, fingerprint string, kind models.VoteType) *models.ReportView {
	t.Helper()
	view, err := e.svc.CastVote(context.Background(), reportID, models.CastVoteInput{
		VoteType:         string(kind),
		VoterFingerprint: fingerprint,
	})
	if err != nil {
		t.Fatalf("CastVote(%s, %s): %v", fingerprint, kind, err)
	}
	return view
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   models.CreateReportInput
	}{
		{"unknown type", models.CreateReportInput{Type: "alien_landing", Latitude: ptr(1.0), Longitude: ptr(1.0)}},
		{"missing type", models.CreateReportInput{Latitude: ptr(1.0), Longitude: ptr(1.0)}},
		{"missing latitude", models.CreateReportInput{Type: "looting", Longitude: ptr(1.0)}},
		{"missing longitude", models.CreateReportInput{Type: "looting", Latitude: ptr(1.0)}},
		{"latitude out of range", models.CreateReportInput{Type: "looting", Latitude: ptr(91.0), Longitude: ptr(1.0)}},
		{"longitude out of range", models.CreateReportInput{Type: "looting", Latitude: ptr(1.0), Longitude: ptr(-180.5)}},
		{"bad source url", models.CreateReportInput{Type: "looting", Latitude: ptr(1.0), Longitude: ptr(1.0), SourceURL: "ftp://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tt.in)
			var vErr *service.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Create error = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreateReport(t *testing.T) {
	e := newEnv(t)

	view := e.create(t, "creator")
	if view.Status != models.StatusUnconfirmed || view.Score != 0 {
		t.Errorf("new report = %s/%v, want unconfirmed/0", view.Status, view.Score)
	}
	if !view.CreatedAt.Equal(t0) || !view.LastActivityAt.Equal(t0) {
		t.Errorf("timestamps = %v/%v, want %v", view.CreatedAt, view.LastActivityAt, t0)
	}
	if view.ConfirmCount != 0 || view.DenyCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", view.ConfirmCount, view.DenyCount)
	}
}

func TestVotingConfirmsReport(t *testing.T) {
	e := newEnv(t)
	report := e.create(t, "")

	view := e.vote(t, report.ID, "A", models.VoteConfirm)
	if view.Score != 1 || view.Status != models.StatusUnconfirmed {
		t.Fatalf("after one confirm = %v/%s, want 1/unconfirmed", view.Score, view.Status)
	}

	e.vote(t, report.ID, "B", models.VoteConfirm)
	view = e.vote(t, report.ID, "C", models.VoteConfirm)
	if view.Score != 3 || view.Status != models.StatusConfirmed {
		t.Fatalf("after three confirms = %v/%s, want 3/confirmed", view.Score, view.Status)
	}
	if view.ConfirmCount != 3 || view.DenyCount != 0 {
		t.Errorf("counts = %d/%d, want 3/0", view.ConfirmCount, view.DenyCount)
	}
	if len(e.notifier.confirmed) != 1 || e.notifier.confirmed[0] != report.ID {
		t.Errorf("notifications = %v, want exactly %s", e.notifier.confirmed, report.ID)
	}

	stored, err := e.reports.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.StatusConfirmed {
		t.Errorf("stored status = %s, want confirmed", stored.Status)
	}
}

func TestVoteDecayUnconfirmsOnRead(t *testing.T) {
	e := newEnv(t)
	report := e.create(t, "")
	e.vote(t, report.ID, "A", models.VoteConfirm)
	e.vote(t, report.ID, "B", models.VoteConfirm)

	// both votes are now weighted 1/2, keeping the report alive
	e.clock.Advance(time.Hour)
	view, err := e.svc.Get(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Score != 1 || view.Status != models.StatusUnconfirmed {
		t.Errorf("decayed = %v/%s, want 1/unconfirmed", view.Score, view.Status)
	}
}

func TestDuplicateVote(t *testing.T) {
	e := newEnv(t)
	report := e.create(t, "")
	e.vote(t, report.ID, "F1", models.VoteConfirm)

	_, err := e.svc.CastVote(context.Background(), report.ID, models.CastVoteInput{VoteType: "deny", VoterFingerprint: "F1"})
	if !errors.Is(err, service.ErrDuplicateVote) {
		t.Fatalf("second vote error = %v, want ErrDuplicateVote", err)
	}

	view, err := e.svc.Get(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.ConfirmCount != 1 || view.DenyCount != 0 {
		t.Errorf("counts = %d/%d, want 1/0", view.ConfirmCount, view.DenyCount)
	}
}

func TestConcurrentDuplicateVote(t *testing.T) {
	e := newEnv(t)
	report := e.create(t, "")

	const workers = 20
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.CastVote(context.Background(), report.ID, models.CastVoteInput{
				VoteType:         "confirm",
				VoterFingerprint: "same-device",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, service.ErrDuplicateVote):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Errorf("ok/duplicate = %d/%d, want 1/%d", ok, dup, workers-1)
	}

	view, err := e.svc.Get(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.ConfirmCount != 1 {
		t.Errorf("confirm count = %d, want 1", view.ConfirmCount)
	}
}

func TestCastVoteErrors(t *testing.T) {
	e := newEnv(t)
	report := e.create(t, "")
	ctx := context.Background()

	tests := []struct {
		name     string
		reportID string
		in       models.CastVoteInput
		check    func(error) bool
	}{
		{"bad vote type", report.ID, models.CastVoteInput{VoteType: "maybe", VoterFingerprint: "x"}, isValidation},
		{"missing fingerprint", report.ID, models.CastVoteInput{VoteType: "confirm"}, isValidation},
		{"unknown report", "5f7a8f0e-8a61-4b43-9df2-0c1d6c1b1f00", models.CastVoteInput{VoteType: "confirm", VoterFingerprint: "x"}, isNotFound},
		{"malformed id", "not-a-uuid", models.CastVoteInput{VoteType: "confirm", VoterFingerprint: "x"}, isNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CastVote(ctx, tt.reportID, tt.in)
			if !tt.check(err) {
				t.Errorf("CastVote error = %v", err)
			}
		})
	}
}

func TestAdminLockHoldsStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	view, err := e.svc.Update(ctx, report.ID, models.UpdateReportInput{Status: ptr("confirmed")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if view.Status != models.StatusConfirmed || view.AdminLockedAt == nil {
		t.Fatalf("after admin edit = %s locked=%v, want confirmed and locked", view.Status, view.AdminLockedAt != nil)
	}

	e.vote(t, report.ID, "A", models.VoteDeny)
	e.vote(t, report.ID, "B", models.VoteDeny)
	view = e.vote(t, report.ID, "C", models.VoteDeny)
	if view.Status != models.StatusConfirmed {
		t.Errorf("locked status after denies = %s, want confirmed", view.Status)
	}
	if view.Score != -3 {
		t.Errorf("locked score = %v, want fresh -3", view.Score)
	}

	// unlocking hands the status back to the votes
	view, err = e.svc.Update(ctx, report.ID, models.UpdateReportInput{Locked: ptr(false)})
	if err != nil {
		t.Fatalf("Update unlock: %v", err)
	}
	if view.AdminLockedAt != nil || view.Status != models.StatusDenied {
		t.Errorf("after unlock = %s locked=%v, want denied and unlocked", view.Status, view.AdminLockedAt != nil)
	}
}

func TestUpdateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	if _, err := e.svc.Update(ctx, report.ID, models.UpdateReportInput{}); !isValidation(err) {
		t.Errorf("empty edit error = %v, want ValidationError", err)
	}
	if _, err := e.svc.Update(ctx, report.ID, models.UpdateReportInput{Status: ptr("pending")}); !isValidation(err) {
		t.Errorf("bad status error = %v, want ValidationError", err)
	}
	if _, err := e.svc.Update(ctx, report.ID, models.UpdateReportInput{Type: ptr("ufo")}); !isValidation(err) {
		t.Errorf("bad type error = %v, want ValidationError", err)
	}
	if _, err := e.svc.Update(ctx, "9a3b6c8e-0000-4000-8000-000000000000", models.UpdateReportInput{Status: ptr("denied")}); !isNotFound(err) {
		t.Errorf("missing report error = %v, want ErrReportNotFound", err)
	}

	view, err := e.svc.Update(ctx, report.ID, models.UpdateReportInput{
		Type:        ptr("looting"),
		Description: ptr("  shops on fire  "),
		SourceURL:   ptr("https://example.org/post"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if view.Type != models.ReportTypeLooting || *view.Description != "shops on fire" || *view.SourceURL != "https://example.org/post" {
		t.Errorf("edited view = %+v", view)
	}
}

func TestExpiry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	e.clock.Advance(4*time.Hour + time.Minute)
	views, err := e.svc.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("List returned %d reports, want expired report hidden", len(views))
	}

	stored, err := e.reports.GetByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.StatusExpired {
		t.Fatalf("stored status = %s, want expired", stored.Status)
	}

	_, err = e.svc.CastVote(ctx, report.ID, models.CastVoteInput{VoteType: "confirm", VoterFingerprint: "late"})
	if !errors.Is(err, service.ErrReportExpired) {
		t.Errorf("vote on expired report error = %v, want ErrReportExpired", err)
	}
}

func TestStaleReportExpiresOnVote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	e.clock.Advance(4 * time.Hour)
	_, err := e.svc.CastVote(ctx, report.ID, models.CastVoteInput{VoteType: "confirm", VoterFingerprint: "A"})
	if !errors.Is(err, service.ErrReportExpired) {
		t.Fatalf("vote at the window edge error = %v, want ErrReportExpired", err)
	}

	view, err := e.svc.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Status != models.StatusExpired {
		t.Errorf("status = %s, want expired", view.Status)
	}
}

func TestVoteJustInsideWindow(t *testing.T) {
	e := newEnv(t)
	report := e.create(t, "")

	e.clock.Advance(4*time.Hour - time.Second)
	view := e.vote(t, report.ID, "A", models.VoteConfirm)
	if view.Status == models.StatusExpired {
		t.Errorf("status = %s, want a live report", view.Status)
	}
}

func TestVoteKeepsReportAlive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	e.clock.Advance(3 * time.Hour)
	e.vote(t, report.ID, "A", models.VoteConfirm)
	e.clock.Advance(3 * time.Hour)

	views, err := e.svc.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].Status == models.StatusExpired {
		t.Fatalf("List = %+v, want one live report", views)
	}
}

func TestListBoundingBox(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inside := e.create(t, "")
	if _, err := e.svc.Create(ctx, models.CreateReportInput{Type: "looting", Latitude: ptr(40.0), Longitude: ptr(-3.7)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	views, err := e.svc.List(ctx, &models.BoundingBox{SouthWestLat: 19, SouthWestLng: -100, NorthEastLat: 20, NorthEastLng: -99})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].ID != inside.ID {
		t.Errorf("List = %+v, want only %s", views, inside.ID)
	}
}

func TestSweepExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	locked := e.create(t, "")
	e.create(t, "")
	if _, err := e.svc.Update(ctx, locked.ID, models.UpdateReportInput{Status: ptr("confirmed")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	e.clock.Advance(5 * time.Hour)
	n, err := e.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("swept %d reports, want 2 including the locked one", n)
	}
}

func TestDeleteReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	if err := e.svc.Delete(ctx, report.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := e.svc.Delete(ctx, report.ID); !isNotFound(err) {
		t.Errorf("second Delete error = %v, want ErrReportNotFound", err)
	}
	if _, err := e.svc.Get(ctx, report.ID); !isNotFound(err) {
		t.Errorf("Get after delete error = %v, want ErrReportNotFound", err)
	}
}

func TestChat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "op")

	first, err := e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: "road closed at the bridge", SenderFingerprint: "op"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if first.AliasNumber != 1 || !first.IsOp {
		t.Errorf("first message alias=%d isOp=%v, want 1/true", first.AliasNumber, first.IsOp)
	}

	e.clock.Advance(10 * time.Second)
	_, err = e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: "still closed", SenderFingerprint: "op"})
	var rateErr *service.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("second Post error = %v, want RateLimitError", err)
	}
	if rateErr.RetryAfterSeconds() != 20 {
		t.Errorf("retry after = %ds, want 20", rateErr.RetryAfterSeconds())
	}

	other, err := e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: "confirmed, I see it", SenderFingerprint: "bystander"})
	if err != nil {
		t.Fatalf("Post other: %v", err)
	}
	if other.AliasNumber != 2 || other.IsOp {
		t.Errorf("other alias=%d isOp=%v, want 2/false", other.AliasNumber, other.IsOp)
	}

	e.clock.Advance(20 * time.Second)
	again, err := e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: "reopened", SenderFingerprint: "op"})
	if err != nil {
		t.Fatalf("Post after cooldown: %v", err)
	}
	if again.AliasNumber != 1 {
		t.Errorf("alias after cooldown = %d, want stable 1", again.AliasNumber)
	}

	all, err := e.chat.List(ctx, report.ID, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d messages, want 3", len(all))
	}

	since := other.CreatedAt
	newer, err := e.chat.List(ctx, report.ID, &since)
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if len(newer) != 1 || newer[0].ID != again.ID {
		t.Errorf("List since = %+v, want only %s", newer, again.ID)
	}

	view, err := e.svc.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.MessageCount != 3 || !view.LastActivityAt.Equal(again.CreatedAt) {
		t.Errorf("report messages=%d lastActivity=%v, want 3 and %v", view.MessageCount, view.LastActivityAt, again.CreatedAt)
	}
}

func TestChatValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	long := make([]rune, service.DefaultMaxMessageLen+1)
	for i := range long {
		long[i] = 'ñ'
	}
	tests := []struct {
		name string
		in   models.PostMessageInput
	}{
		{"blank content", models.PostMessageInput{Content: "   ", SenderFingerprint: "a"}},
		{"missing sender", models.PostMessageInput{Content: "hello"}},
		{"too long", models.PostMessageInput{Content: string(long), SenderFingerprint: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.chat.Post(ctx, report.ID, tt.in); !isValidation(err) {
				t.Errorf("Post error = %v, want ValidationError", err)
			}
		})
	}

	exact := string(long[:service.DefaultMaxMessageLen])
	if _, err := e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: exact, SenderFingerprint: "a"}); err != nil {
		t.Errorf("Post at the length limit: %v", err)
	}
}

func TestChatOnExpiredReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	e.clock.Advance(4*time.Hour + time.Second)
	_, err := e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: "anyone?", SenderFingerprint: "a"})
	if !errors.Is(err, service.ErrReportExpired) {
		t.Errorf("Post error = %v, want ErrReportExpired", err)
	}
	if _, err := e.chat.List(ctx, report.ID, nil); err != nil {
		t.Errorf("List on expired report: %v", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")
	other := e.create(t, "")

	msg, err := e.chat.Post(ctx, report.ID, models.PostMessageInput{Content: "spam", SenderFingerprint: "a"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if err := e.chat.Delete(ctx, other.ID, msg.ID); !errors.Is(err, service.ErrMessageNotFound) {
		t.Errorf("Delete through another report error = %v, want ErrMessageNotFound", err)
	}
	if err := e.chat.Delete(ctx, report.ID, msg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := e.chat.Delete(ctx, report.ID, msg.ID); !errors.Is(err, service.ErrMessageNotFound) {
		t.Errorf("second Delete error = %v, want ErrMessageNotFound", err)
	}
}

func TestSources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	report := e.create(t, "")

	for _, bad := range []models.AddSourceInput{
		{URL: "javascript:alert(1)", AddedByFingerprint: "a"},
		{URL: "/relative/path", AddedByFingerprint: "a"},
		{URL: "https://example.org"},
	} {
		if _, err := e.sources.Add(ctx, report.ID, bad); !isValidation(err) {
			t.Errorf("Add(%+v) error = %v, want ValidationError", bad, err)
		}
	}

	e.clock.Advance(3 * time.Hour)
	src, err := e.sources.Add(ctx, report.ID, models.AddSourceInput{URL: "https://example.org/video", AddedByFingerprint: "a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	e.clock.Advance(2 * time.Hour)
	view, err := e.svc.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Status == models.StatusExpired || view.SourceCount != 1 {
		t.Errorf("report status=%s sources=%d, want live with 1 source", view.Status, view.SourceCount)
	}

	list, err := e.sources.List(ctx, report.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != src.ID {
		t.Errorf("List = %+v, want %s", list, src.ID)
	}
	if _, err := e.sources.List(ctx, "00000000-0000-4000-8000-000000000000"); !isNotFound(err) {
		t.Errorf("List for missing report error = %v, want ErrReportNotFound", err)
	}
}

func isValidation(err error) bool {
	var vErr *service.ValidationError
	return errors.As(err, &vErr)
}

func isNotFound(err error) bool {
	return errors.Is(err, service.ErrReportNotFound)
}
