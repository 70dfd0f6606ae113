package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Sink receives refreshed snapshots.
type Sink interface {
	SetLeaderboards(boards []models.Leaderboard)
}

// Refresher polls a Source on a cron schedule and pushes the result into
// a Sink.
type Refresher struct {
	source  Source
	sink    Sink
	user    func() *models.User
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRefresher creates a stopped Refresher. user returns the current user;
// refreshes are skipped while it returns nil.
func NewRefresher(source Source, sink Sink, user func() *models.User, logger *zap.Logger) *Refresher {
	return &Refresher{
		source:  source,
		sink:    sink,
		user:    user,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// RefreshOnce fetches and publishes one snapshot.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	u := r.user()
	if u == nil {
		r.logger.Debug("No current user, skipping leaderboard refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	boards, err := r.source.Fetch(ctx, *u)
	if err != nil {
		return err
	}
	r.sink.SetLeaderboards(boards)
	return nil
}

// Start refreshes immediately and then on every scheduled run.
func (r *Refresher) Start(schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	r.cron = c

	go r.run()
	c.Start()
	r.logger.Info("Leaderboard refresher started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (r *Refresher) run() {
	if err := r.RefreshOnce(context.Background()); err != nil {
		r.logger.Warn("Failed to refresh leaderboards", zap.Error(err))
	}
}
