package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
	"github.com/meiriv/kids-sports-safety-app/internal/store"
)

// UpdateContacts replaces the emergency contacts and stores them for the
// current user. The in-memory list is updated even when storing fails.
// When the stored list could not be read at sign-in it is read again first,
// and its entries are kept unless the new list has the same id.
func (s *CoreService) UpdateContacts(ctx context.Context, contacts []models.EmergencyContact) error {
	u := s.ledger.CurrentUser()
	if s.contacts == nil || u == nil || u.ID == "" {
		s.system.SetContacts(contacts)
		return nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.contactsUser != u.ID {
		stored, err := s.contacts.Load(ctx, u.ID)
		switch {
		case err == nil:
			contacts = mergeContacts(stored, contacts)
		case errors.Is(err, store.ErrCacheMiss):
		default:
			s.system.SetContacts(contacts)
			return fmt.Errorf("stored contacts unreadable, new contacts kept in memory only: %w", err)
		}
		s.contactsUser = u.ID
	}

	s.system.SetContacts(contacts)
	if err := s.contacts.Save(ctx, u.ID, contacts); err != nil {
		return fmt.Errorf("failed to store contacts: %w", err)
	}
	return nil
}

func mergeContacts(stored, updated []models.EmergencyContact) []models.EmergencyContact {
	replaced := make(map[string]bool, len(updated))
	for _, c := range updated {
		replaced[c.ID] = true
	}
	merged := make([]models.EmergencyContact, 0, len(stored)+len(updated))
	for _, c := range stored {
		if !replaced[c.ID] {
			merged = append(merged, c)
		}
	}
	return append(merged, updated...)
}

// SetUser switches the current user and loads the stored progress and
// contacts of the new user. A nil user signs out and clears the totals.
// A failed load is returned; the stored data is not overwritten until it
// has been read.
func (s *CoreService) SetUser(ctx context.Context, user *models.User) error {
	if prev := s.ledger.CurrentUser(); prev != nil && user != nil && prev.ID == user.ID {
		s.ledger.SetCurrentUser(user)
		return nil
	}

	if s.ledger.CurrentSession() != nil {
		s.ledger.EndActivitySession()
	}

	var errs []error
	if s.consumer != nil {
		deviceUser := s.config.User.ID
		if user != nil && user.ID != "" {
			deviceUser = user.ID
		}
		if err := s.consumer.SetUserID(ctx, deviceUser); err != nil {
			errs = append(errs, fmt.Errorf("failed to follow device topics: %w", err))
		}
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.progressUser, s.contactsUser = "", ""

	s.ledger.SetCurrentUser(user)
	s.ledger.Restore(models.Progress{})
	s.ledger.SetLeaderboards(nil)
	s.system.SetContacts(nil)

	if user == nil || user.ID == "" {
		return errors.Join(errs...)
	}
	s.logger.Info("Current user changed", zap.String("user_id", user.ID))

	if s.progress != nil {
		p, err := s.progress.Load(ctx, user.ID)
		switch {
		case err == nil:
			s.ledger.Restore(p)
			s.progressUser = user.ID
		case errors.Is(err, store.ErrCacheMiss):
			s.progressUser = user.ID
		default:
			errs = append(errs, err)
		}
	}
	if s.contacts != nil {
		contacts, err := s.contacts.Load(ctx, user.ID)
		switch {
		case err == nil:
			s.system.SetContacts(contacts)
			s.contactsUser = user.ID
		case errors.Is(err, store.ErrCacheMiss):
			s.contactsUser = user.ID
		default:
			errs = append(errs, err)
		}
	}

	go func() {
		if err := s.refresher.RefreshOnce(context.Background()); err != nil {
			s.logger.Warn("Failed to refresh leaderboards", zap.Error(err))
		}
	}()

	return errors.Join(errs...)
}

// Sessions returns the stored sessions of the current user, newest first.
func (s *CoreService) Sessions(ctx context.Context, limit int) ([]*models.ActivitySession, error) {
	if s.sessionRepo == nil {
		return []*models.ActivitySession{}, nil
	}
	return s.sessionRepo.ListSessions(ctx, s.currentUserID(), limit)
}

// Alerts returns the stored alerts of the current user, newest first.
func (s *CoreService) Alerts(ctx context.Context, limit int) ([]*models.EmergencyAlert, error) {
	if s.alertRepo == nil {
		return []*models.EmergencyAlert{}, nil
	}
	return s.alertRepo.ListAlerts(ctx, s.currentUserID(), limit)
}
