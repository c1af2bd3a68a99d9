package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

const accountsCollection = "accounts"

type accountStore struct {
	client *firestore.Client
}

func NewAccountStore(client *firestore.Client) *accountStore {
	return &accountStore{client: client}
}

func (s *accountStore) collection(uid string) *firestore.CollectionRef {
	return userCollection(s.client, uid, accountsCollection)
}

// Create fails with AlreadyExistsError when the account id is taken.
func (s *accountStore) Create(ctx context.Context, acc *models.Account) error {
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
	_, err := s.collection(acc.UserID).Doc(acc.AccountID).Create(ctx, acc)
	return translate(err, "create", "account")
}

func (s *accountStore) Get(ctx context.Context, uid, accountID string) (*models.Account, error) {
	snap, err := s.collection(uid).Doc(accountID).Get(ctx)
	if err != nil {
		return nil, translate(err, "read", "account")
	}
	var acc models.Account
	if err := snap.DataTo(&acc); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse account data", err)
	}
	return &acc, nil
}

// GetByExternalID resolves a synced account. Synced accounts are keyed by
// their external id.
func (s *accountStore) GetByExternalID(ctx context.Context, uid, externalID string) (*models.Account, error) {
	acc, err := s.Get(ctx, uid, externalID)
	if err != nil {
		return nil, err
	}
	if acc.ExternalAccountID != externalID {
		return nil, errs.NewNotFoundError("account not found")
	}
	return acc, nil
}

func (s *accountStore) List(ctx context.Context, uid string) ([]*models.Account, error) {
	docs, err := s.collection(uid).Where("isActive", "==", true).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list accounts", err)
	}
	accounts := make([]*models.Account, 0, len(docs))
	for _, d := range docs {
		var acc models.Account
		if err := d.DataTo(&acc); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse account data", err)
		}
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}

// UpdateBalance overwrites the balance. Ownership, type and item linkage are
// left alone.
func (s *accountStore) UpdateBalance(ctx context.Context, uid, accountID string, bal models.Balance) error {
	_, err := s.collection(uid).Doc(accountID).Update(ctx, []firestore.Update{
		{Path: "balance", Value: bal},
		{Path: "isActive", Value: true},
		{Path: "updatedAt", Value: time.Now()},
	})
	return translate(err, "update", "account")
}

// DeactivateByItem marks every account of an item inactive and returns their ids.
func (s *accountStore) DeactivateByItem(ctx context.Context, uid, itemID string) ([]string, error) {
	docs, err := s.collection(uid).Where("itemId", "==", itemID).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list item accounts", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	ids := make([]string, 0, len(docs))
	now := time.Now()
	for _, d := range docs {
		job, err := bw.Update(d.Ref, []firestore.Update{
			{Path: "isActive", Value: false},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			bw.End()
			return nil, errs.NewDatabaseError("update", "failed to deactivate account", err)
		}
		jobs = append(jobs, job)
		ids = append(ids, d.Ref.ID)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return nil, errs.NewDatabaseError("update", "failed to deactivate account", err)
		}
	}
	return ids, nil
}
