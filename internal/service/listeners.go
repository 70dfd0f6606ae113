package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/emergency"
	"github.com/meiriv/kids-sports-safety-app/internal/gamification"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
	"github.com/meiriv/kids-sports-safety-app/internal/store"
)

// job is one unit of persistence work. Jobs run one at a time in the order
// they were queued, so alert upserts land in transition order.
type job struct {
	name string
	run  func(ctx context.Context) error
}

func (s *CoreService) enqueue(name string, run func(ctx context.Context) error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	if s.jobsClosed {
		s.logger.Debug("Service stopping, job dropped", zap.String("job", name))
		return
	}
	select {
	case s.jobs <- job{name: name, run: run}:
	default:
		s.logger.Warn("Job queue full, job dropped", zap.String("job", name))
	}
}

func (s *CoreService) runJobs() {
	defer close(s.workerDone)
	for j := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := j.run(ctx); err != nil {
			s.logger.Error("Failed to "+j.name, zap.Error(err))
		}
		cancel()
	}
}

func (s *CoreService) closeJobs() {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if !s.jobsClosed {
		s.jobsClosed = true
		close(s.jobs)
	}
}

func (s *CoreService) onEmergencyEvent(e emergency.Event) {
	s.metrics.ObserveEmergency(e)

	if e.Alert == nil {
		return
	}
	alert := e.Alert
	kind := string(e.Kind)

	if s.alertRepo != nil {
		s.enqueue("store alert", func(ctx context.Context) error {
			return s.alertRepo.UpsertAlert(ctx, alert)
		})
	}
	if s.publisher != nil {
		s.enqueue("publish alert event", func(ctx context.Context) error {
			return s.publisher.PublishAlert(ctx, kind, alert)
		})
	}
	if e.Kind == emergency.EventAlertActivated {
		s.notifyContacts(alert, e.Contacts)
	}
}

func (s *CoreService) notifyContacts(alert *models.EmergencyAlert, contacts []models.EmergencyContact) {
	if s.notifier == nil {
		s.logger.Warn("No notifier configured, emergency contacts not notified", zap.String("alert_id", alert.ID))
		return
	}
	if len(contacts) == 0 {
		s.logger.Warn("No emergency contacts configured", zap.String("alert_id", alert.ID))
		return
	}

	if !s.startNotify() {
		s.logger.Warn("Service stopping, emergency contacts not notified", zap.String("alert_id", alert.ID))
		return
	}
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*s.config.Notifier.Timeout+jobTimeout)
		defer cancel()

		notified, err := s.notifier.Notify(ctx, alert, contacts)
		if err != nil {
			s.logger.Error("Failed to notify emergency contacts",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			return
		}
		if !s.system.RecordNotified(alert.ID, notified) {
			s.logger.Info("Alert closed before notification was recorded", zap.String("alert_id", alert.ID))
		}
	}()
}

// startNotify registers one dispatch with notifyWG unless stop has begun
// waiting on it.
func (s *CoreService) startNotify() bool {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	if s.stopping {
		return false
	}
	s.notifyWG.Add(1)
	return true
}

func (s *CoreService) onLedgerEvent(e gamification.Event) {
	s.metrics.ObserveLedger(e)

	switch e.Kind {
	case gamification.EventSessionStarted, gamification.EventSessionEnded:
		session := e.Session
		kind := string(e.Kind)
		if e.Kind == gamification.EventSessionEnded && s.sessionRepo != nil && session != nil {
			s.enqueue("store session", func(ctx context.Context) error {
				return s.sessionRepo.CreateSession(ctx, session)
			})
		}
		if s.publisher != nil && session != nil {
			s.enqueue("publish session event", func(ctx context.Context) error {
				return s.publisher.PublishSession(ctx, kind, session)
			})
		}
	}

	if e.Kind != gamification.EventSessionStarted {
		s.saveProgress(e.UserID)
	}
}

// saveProgress snapshots the ledger totals of userID. Until the stored
// progress of userID has been read, the save folds it in first.
func (s *CoreService) saveProgress(userID string) {
	if s.progress == nil || userID == gamification.UnknownUser {
		return
	}
	s.loadMu.Lock()
	loaded := s.progressUser == userID
	p := s.ledger.Progress()
	s.loadMu.Unlock()
	if p.UserID != userID {
		return
	}

	if !loaded {
		s.enqueue("save progress", func(ctx context.Context) error {
			return s.mergeStoredProgress(ctx, userID)
		})
		return
	}
	s.enqueue("save progress", func(ctx context.Context) error {
		return s.progress.Save(ctx, userID, p)
	})
}

// mergeStoredProgress reads the stored progress that could not be read at
// sign-in, merges it into the ledger and saves the result. Nothing is saved
// while the stored progress stays unreadable.
func (s *CoreService) mergeStoredProgress(ctx context.Context, userID string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.progressUser != userID {
		stored, err := s.progress.Load(ctx, userID)
		switch {
		case err == nil:
			if !s.ledger.Merge(userID, stored) {
				return fmt.Errorf("user %s changed before stored progress was read, totals not saved", userID)
			}
			s.logger.Info("Stored progress merged", zap.String("user_id", userID), zap.Int("stored_points", stored.Points))
		case errors.Is(err, store.ErrCacheMiss):
		default:
			return fmt.Errorf("stored progress of %s unreadable, totals not saved: %w", userID, err)
		}
		s.progressUser = userID
	}

	p := s.ledger.Progress()
	if p.UserID != userID {
		return nil
	}
	return s.progress.Save(ctx, userID, p)
}
