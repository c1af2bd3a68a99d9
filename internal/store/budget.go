package store

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

type budgetStore struct {
	client *firestore.Client
}

func NewBudgetStore(client *firestore.Client) *budgetStore {
	return &budgetStore{client: client}
}

func (s *budgetStore) collection(uid string) *firestore.CollectionRef {
	return userCollection(s.client, uid, "budgets")
}

func (s *budgetStore) Create(ctx context.Context, b *models.Budget) error {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	_, err := s.collection(b.UserID).Doc(b.BudgetID).Create(ctx, b)
	return translate(err, "create", "budget")
}

func (s *budgetStore) Get(ctx context.Context, uid, budgetID string) (*models.Budget, error) {
	snap, err := s.collection(uid).Doc(budgetID).Get(ctx)
	if err != nil {
		return nil, translate(err, "read", "budget")
	}
	var b models.Budget
	if err := snap.DataTo(&b); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse budget data", err)
	}
	return &b, nil
}

// List applies equality filters in Firestore and the date overlap in memory,
// newest start date first.
func (s *budgetStore) List(ctx context.Context, uid string, q dto.BudgetQuery) ([]*models.Budget, error) {
	query := s.collection(uid).Query
	if q.IsActive != nil {
		query = query.Where("isActive", "==", *q.IsActive)
	}
	if q.Category != nil {
		query = query.Where("category", "==", string(*q.Category))
	}
	if q.Period != nil {
		query = query.Where("period", "==", string(*q.Period))
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list budgets", err)
	}
	budgets := make([]*models.Budget, 0, len(docs))
	for _, d := range docs {
		var b models.Budget
		if err := d.DataTo(&b); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse budget data", err)
		}
		if q.EndDate != nil && b.StartDate > *q.EndDate {
			continue
		}
		if q.StartDate != nil && b.EndDate != nil && *b.EndDate < *q.StartDate {
			continue
		}
		budgets = append(budgets, &b)
	}
	sort.SliceStable(budgets, func(i, j int) bool {
		return budgets[i].StartDate > budgets[j].StartDate
	})
	return budgets, nil
}

// Update replaces an existing budget. It never creates one.
func (s *budgetStore) Update(ctx context.Context, b *models.Budget) error {
	ref := s.collection(b.UserID).Doc(b.BudgetID)
	b.UpdatedAt = time.Now()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		if _, err := t.Get(ref); err != nil {
			return err
		}
		return t.Set(ref, b)
	})
	return translate(err, "update", "budget")
}

func (s *budgetStore) Delete(ctx context.Context, uid, budgetID string) error {
	_, err := s.collection(uid).Doc(budgetID).Delete(ctx, firestore.Exists)
	return translate(err, "delete", "budget")
}
