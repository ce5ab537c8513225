// Package scheduler runs the periodic report broadcast and the
// expiry-change watcher.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/config"
	"xui_reseller_bot/internal/logging"
	"xui_reseller_bot/internal/panel"
	"xui_reseller_bot/internal/report"
)

type resellerDirectory interface {
	AllResellerIDs(ctx context.Context) ([]int64, error)
	InboundsFor(ctx context.Context, userID int64) ([]int64, error)
}

type snapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (panel.Snapshot, error)
}

type pusher interface {
	TrySend(ctx context.Context, chatID int64, text string)
}

type snapshotHistory interface {
	Save(ctx context.Context, telegramID int64, snapshotJSON string, reportedAt time.Time) error
	Last(ctx context.Context, telegramID int64) (string, bool, error)
}

type failureRecorder interface {
	Record(op string, err error)
}

// statusSnapshot is the per-reseller state persisted between change checks.
type statusSnapshot struct {
	Expiring []string `json:"expiring"`
	Expired  []string `json:"expired"`
}

// Scheduler owns the two background jobs: the interval report broadcast to
// every reseller and super admin, and the change watcher that pushes a
// notice when a client newly enters the expiring or expired state.
type Scheduler struct {
	cfg       config.Config
	resellers resellerDirectory
	fetcher   snapshotFetcher
	push      pusher
	history   snapshotHistory
	failures  failureRecorder
	logger    *logrus.Entry
	now       func() time.Time
}

// New constructs a Scheduler.
func New(cfg config.Config, resellers resellerDirectory, fetcher snapshotFetcher, push pusher, history snapshotHistory, failures failureRecorder, logger *logrus.Entry) (*Scheduler, error) {
	if resellers == nil || fetcher == nil || push == nil || history == nil {
		return nil, errors.New("scheduler dependencies are required")
	}
	if logger == nil {
		logger = logging.Logger()
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = config.DefaultReportInterval
	}
	if cfg.ChangeCheckInterval <= 0 {
		cfg.ChangeCheckInterval = config.DefaultChangeCheckInterval
	}

	return &Scheduler{
		cfg:       cfg,
		resellers: resellers,
		fetcher:   fetcher,
		push:      push,
		history:   history,
		failures:  failures,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run blocks until the context is canceled, firing the broadcast and change
// check on their configured intervals. Job failures are logged and recorded,
// never fatal.
func (s *Scheduler) Run(ctx context.Context) {
	reportTicker := time.NewTicker(s.cfg.ReportInterval)
	defer reportTicker.Stop()

	changeTicker := time.NewTicker(s.cfg.ChangeCheckInterval)
	defer changeTicker.Stop()

	s.logger.WithFields(logging.Fields{
		"event":           "scheduler_started",
		"report_interval": s.cfg.ReportInterval.String(),
		"change_interval": s.cfg.ChangeCheckInterval.String(),
	}).Info("scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("event", "scheduler_stopped").Info("scheduler stopped")
			return
		case <-reportTicker.C:
			s.BroadcastReports(ctx)
		case <-changeTicker.C:
			s.CheckChanges(ctx)
		}
	}
}

// BroadcastReports sends every reseller the report over their assigned
// inbounds and every super admin the full-panel report. One fetch serves the
// whole broadcast.
func (s *Scheduler) BroadcastReports(ctx context.Context) {
	snap, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		s.recordFailure("broadcast fetch", err)
		return
	}

	now := s.now()
	sent := 0

	ids, err := s.resellers.AllResellerIDs(ctx)
	if err != nil {
		s.recordFailure("broadcast list resellers", err)
		return
	}

	for _, id := range ids {
		inbounds, err := s.resellers.InboundsFor(ctx, id)
		if err != nil {
			s.recordFailure(fmt.Sprintf("broadcast assignments for %d", id), err)
			continue
		}
		if len(inbounds) == 0 {
			continue
		}

		rep := report.Build(snap, report.Filter(inbounds), now)
		s.push.TrySend(ctx, id, rep.Format(now))
		sent++
	}

	full := report.Build(snap, report.Filter(snap.InboundIDs()), now)
	for _, adminID := range s.cfg.SuperAdmins {
		s.push.TrySend(ctx, adminID, full.Format(now))
		sent++
	}

	s.logger.WithFields(logging.Fields{
		"event":      "report_broadcast",
		"recipients": sent,
	}).Info("broadcast reports")
}

// CheckChanges compares each recipient's expiring/expired sets against the
// persisted snapshot and pushes a notice for every client that newly entered
// one of the states. Resellers are checked over their assigned inbounds,
// super admins over the full panel. The new snapshot is saved even when
// nothing changed so the stored state tracks the panel.
func (s *Scheduler) CheckChanges(ctx context.Context) {
	snap, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		s.recordFailure("change check fetch", err)
		return
	}

	ids, err := s.resellers.AllResellerIDs(ctx)
	if err != nil {
		s.recordFailure("change check list resellers", err)
		return
	}

	now := s.now()

	for _, id := range ids {
		// Super admins are covered by the full-set pass below; running both
		// would clobber their stored snapshot.
		if s.cfg.IsSuperAdmin(id) {
			continue
		}

		if err := s.checkReseller(ctx, id, snap, now); err != nil {
			s.recordFailure(fmt.Sprintf("change check for %d", id), err)
		}
	}

	full := snap.InboundIDs()
	for _, adminID := range s.cfg.SuperAdmins {
		if err := s.checkRecipient(ctx, adminID, full, snap, now); err != nil {
			s.recordFailure(fmt.Sprintf("change check for admin %d", adminID), err)
		}
	}
}

func (s *Scheduler) checkReseller(ctx context.Context, id int64, snap panel.Snapshot, now time.Time) error {
	inbounds, err := s.resellers.InboundsFor(ctx, id)
	if err != nil {
		return err
	}
	if len(inbounds) == 0 {
		return nil
	}

	return s.checkRecipient(ctx, id, inbounds, snap, now)
}

func (s *Scheduler) checkRecipient(ctx context.Context, id int64, inbounds []int64, snap panel.Snapshot, now time.Time) error {
	rep := report.Build(snap, report.Filter(inbounds), now)
	current := statusSnapshot{Expiring: rep.Expiring, Expired: rep.Expired}

	previous := statusSnapshot{}
	if raw, found, err := s.history.Last(ctx, id); err != nil {
		return err
	} else if found {
		if err := json.Unmarshal([]byte(raw), &previous); err != nil {
			// A corrupt snapshot is replaced rather than fatal.
			s.logger.WithFields(logging.Fields{
				"event":   "snapshot_corrupt",
				"user_id": id,
			}).WithError(err).Warn("discarding unreadable status snapshot")
		}
	}

	for _, email := range newEntries(previous.Expiring, current.Expiring) {
		s.push.TrySend(ctx, id, fmt.Sprintf("⏳ Client [ %s ] expires within 24 hours.", email))
	}
	for _, email := range newEntries(previous.Expired, current.Expired) {
		s.push.TrySend(ctx, id, fmt.Sprintf("🚫 Client [ %s ] has expired.", email))
	}

	raw, err := json.Marshal(current)
	if err != nil {
		return err
	}

	return s.history.Save(ctx, id, string(raw), now)
}

// newEntries returns the items of current that are absent from previous,
// preserving current's order.
func newEntries(previous, current []string) []string {
	seen := make(map[string]struct{}, len(previous))
	for _, item := range previous {
		seen[item] = struct{}{}
	}

	var fresh []string
	for _, item := range current {
		if _, ok := seen[item]; !ok {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

func (s *Scheduler) recordFailure(op string, err error) {
	if s.failures != nil {
		s.failures.Record(op, err)
	}

	s.logger.WithFields(logging.Fields{
		"event": "job_failed",
		"op":    op,
	}).WithError(err).Error("scheduled job failed")
}
