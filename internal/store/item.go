package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

const itemsCollection = "items"

type itemStore struct {
	client *firestore.Client
}

func NewItemStore(client *firestore.Client) *itemStore {
	return &itemStore{client: client}
}

func (s *itemStore) doc(uid, itemID string) *firestore.DocumentRef {
	return userCollection(s.client, uid, itemsCollection).Doc(itemID)
}

func (s *itemStore) Create(ctx context.Context, item *models.LinkedItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.AccountIDs == nil {
		item.AccountIDs = []string{}
	}
	_, err := s.doc(item.UserID, item.ItemID).Create(ctx, item)
	return translate(err, "create", "linked item")
}

func (s *itemStore) Get(ctx context.Context, uid, itemID string) (*models.LinkedItem, error) {
	snap, err := s.doc(uid, itemID).Get(ctx)
	if err != nil {
		return nil, translate(err, "read", "linked item")
	}
	var item models.LinkedItem
	if err := snap.DataTo(&item); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse linked item data", err)
	}
	return &item, nil
}

// FindByItemID locates an item without knowing its owner. Webhooks only carry
// the external item id.
func (s *itemStore) FindByItemID(ctx context.Context, itemID string) (*models.LinkedItem, error) {
	iter := s.client.CollectionGroup(itemsCollection).Where("itemId", "==", itemID).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, errs.NewNotFoundError("linked item not found")
	}
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to find linked item", err)
	}
	var item models.LinkedItem
	if err := snap.DataTo(&item); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse linked item data", err)
	}
	return &item, nil
}

func (s *itemStore) ListActive(ctx context.Context, uid string) ([]*models.LinkedItem, error) {
	docs, err := userCollection(s.client, uid, itemsCollection).
		Where("isActive", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list linked items", err)
	}
	items := make([]*models.LinkedItem, 0, len(docs))
	for _, d := range docs {
		var item models.LinkedItem
		if err := d.DataTo(&item); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse linked item data", err)
		}
		items = append(items, &item)
	}
	return items, nil
}

func (s *itemStore) update(ctx context.Context, uid, itemID string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	_, err := s.doc(uid, itemID).Update(ctx, updates)
	return translate(err, "update", "linked item")
}

func (s *itemStore) SetCursor(ctx context.Context, uid, itemID, cursor string) error {
	return s.update(ctx, uid, itemID, firestore.Update{Path: "cursor", Value: cursor})
}

func (s *itemStore) SetStatus(ctx context.Context, uid, itemID string, status models.ItemStatus, itemErr *models.ItemError) error {
	return s.update(ctx, uid, itemID,
		firestore.Update{Path: "status", Value: status},
		firestore.Update{Path: "error", Value: itemErr},
	)
}

// MarkSynced records a completed sync pass.
func (s *itemStore) MarkSynced(ctx context.Context, uid, itemID string, at time.Time) error {
	return s.update(ctx, uid, itemID,
		firestore.Update{Path: "status", Value: models.ItemStatusGood},
		firestore.Update{Path: "error", Value: nil},
		firestore.Update{Path: "lastUpdated", Value: at},
	)
}

// AddAccount appends accountID to the item's account list. Repeating the call
// leaves a single entry.
func (s *itemStore) AddAccount(ctx context.Context, uid, itemID, accountID string) error {
	return s.update(ctx, uid, itemID, firestore.Update{Path: "accountIds", Value: firestore.ArrayUnion(accountID)})
}

func (s *itemStore) SetAccessToken(ctx context.Context, uid, itemID, sealed string) error {
	return s.update(ctx, uid, itemID, firestore.Update{Path: "accessToken", Value: sealed})
}

// Deactivate soft-unlinks the item. The sealed token is cleared.
func (s *itemStore) Deactivate(ctx context.Context, uid, itemID string) error {
	return s.update(ctx, uid, itemID,
		firestore.Update{Path: "isActive", Value: false},
		firestore.Update{Path: "accessToken", Value: ""},
	)
}

// Reactivate restores an unlinked item under a fresh sealed token. The cursor
// is cleared so the next pass replays the initial snapshot.
func (s *itemStore) Reactivate(ctx context.Context, uid, itemID, sealed string) error {
	return s.update(ctx, uid, itemID,
		firestore.Update{Path: "isActive", Value: true},
		firestore.Update{Path: "accessToken", Value: sealed},
		firestore.Update{Path: "status", Value: models.ItemStatusGood},
		firestore.Update{Path: "error", Value: nil},
		firestore.Update{Path: "cursor", Value: nil},
	)
}
