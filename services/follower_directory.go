package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fitQuestAPI/internal/notification"
	"fitQuestAPI/internal/store"
)

type FollowerDirectory interface {
	ListFollowers(ctx context.Context, userID uuid.UUID, pref notification.NotificationType) ([]uuid.UUID, error)
}

// StoreFollowerDirectory lists accepted friends, in either direction, who
// have not turned off pref.
type StoreFollowerDirectory struct {
	store store.Store
}

func NewStoreFollowerDirectory(st store.Store) *StoreFollowerDirectory {
	return &StoreFollowerDirectory{store: st}
}

func (d *StoreFollowerDirectory) ListFollowers(ctx context.Context, userID uuid.UUID, pref notification.NotificationType) ([]uuid.UUID, error) {
	ids, err := d.store.ListFollowers(ctx, userID, pref)
	if err != nil {
		return nil, fmt.Errorf("failed to get friends for notification: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == userID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
