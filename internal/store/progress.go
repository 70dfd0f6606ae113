package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

const (
	progressKeyPrefix = "kids:progress:"
	contactsKeyPrefix = "kids:contacts:"
)

// ProgressStore keeps ledger totals per user. Entries do not expire.
type ProgressStore struct {
	kv KV
}

func NewProgressStore(kv KV) *ProgressStore {
	return &ProgressStore{kv: kv}
}

// Save overwrites the stored progress of userID.
func (s *ProgressStore) Save(ctx context.Context, userID string, p models.Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := s.kv.Set(ctx, progressKeyPrefix+userID, string(b), 0); err != nil {
		return fmt.Errorf("failed to save progress for %s: %w", userID, err)
	}
	return nil
}

// Load returns the stored progress of userID, or ErrCacheMiss.
func (s *ProgressStore) Load(ctx context.Context, userID string) (models.Progress, error) {
	var p models.Progress
	val, err := s.kv.Get(ctx, progressKeyPrefix+userID)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal progress for %s: %w", userID, err)
	}
	return p, nil
}

// ContactStore keeps the emergency contact list per user.
type ContactStore struct {
	kv KV
}

func NewContactStore(kv KV) *ContactStore {
	return &ContactStore{kv: kv}
}

func (s *ContactStore) Save(ctx context.Context, userID string, contacts []models.EmergencyContact) error {
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	b, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal contacts: %w", err)
	}
	if err := s.kv.Set(ctx, contactsKeyPrefix+userID, string(b), 0); err != nil {
		return fmt.Errorf("failed to save contacts for %s: %w", userID, err)
	}
	return nil
}

// Load returns the stored contacts of userID, or ErrCacheMiss.
func (s *ContactStore) Load(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	val, err := s.kv.Get(ctx, contactsKeyPrefix+userID)
	if err != nil {
		return nil, err
	}
	var contacts []models.EmergencyContact
	if err := json.Unmarshal([]byte(val), &contacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contacts for %s: %w", userID, err)
	}
	return contacts, nil
}
