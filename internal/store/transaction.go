package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

const (
	transactionsCollection = "transactions"
	queryBuffer            = 64
	maxInValues            = 30
)

type transactionStore struct {
	client *firestore.Client
}

func NewTransactionStore(client *firestore.Client) *transactionStore {
	return &transactionStore{client: client}
}

func (s *transactionStore) txCollection(uid string) *firestore.CollectionRef {
	return userCollection(s.client, uid, transactionsCollection)
}

// Create inserts a new ledger entry. A second insert of the same id returns
// AlreadyExistsError, which is how concurrent syncs of one item converge.
func (s *transactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	_, err := s.txCollection(tx.UserID).Doc(tx.TransactionID).Create(ctx, tx)
	return translate(err, "create", "transaction")
}

func (s *transactionStore) Get(ctx context.Context, uid, id string) (*models.Transaction, error) {
	snap, err := s.txCollection(uid).Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err, "read", "transaction")
	}
	return decodeTransaction(snap)
}

// GetByExternalID resolves a synced entry, deleted or not.
func (s *transactionStore) GetByExternalID(ctx context.Context, uid, externalID string) (*models.Transaction, error) {
	tx, err := s.Get(ctx, uid, externalID)
	if err != nil {
		return nil, err
	}
	if tx.ExternalID != externalID {
		return nil, errs.NewNotFoundError("transaction not found")
	}
	return tx, nil
}

// Update reads the entry inside a Firestore transaction, lets apply change
// it and writes it back, so concurrent writers never replace each other's
// fields with stale values. Firestore reruns the closure when the document
// changes underneath; apply must depend only on the entry it is given. An
// error from apply aborts the write and is returned unchanged. Update never
// creates an entry.
func (s *transactionStore) Update(ctx context.Context, uid, id string, apply func(tx *models.Transaction) error) (*models.Transaction, error) {
	ref := s.txCollection(uid).Doc(id)
	var (
		updated *models.Transaction
		ownErr  error
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		ownErr = nil
		snap, err := t.Get(ref)
		if err != nil {
			return err
		}
		tx, err := decodeTransaction(snap)
		if err != nil {
			ownErr = err
			return err
		}
		if err := apply(tx); err != nil {
			ownErr = err
			return err
		}
		tx.UpdatedAt = time.Now()
		updated = tx
		return t.Set(ref, tx)
	})
	if ownErr != nil {
		return nil, ownErr
	}
	if err != nil {
		return nil, translate(err, "update", "transaction")
	}
	return updated, nil
}

// SoftDelete flips isDeleted. changed is false when the entry was already
// deleted.
func (s *transactionStore) SoftDelete(ctx context.Context, uid, id string) (changed bool, err error) {
	ref := s.txCollection(uid).Doc(id)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		changed = false
		snap, err := t.Get(ref)
		if err != nil {
			return err
		}
		deleted, _ := snap.DataAt("isDeleted")
		if d, ok := deleted.(bool); ok && d {
			return nil
		}
		changed = true
		return t.Update(ref, []firestore.Update{
			{Path: "isDeleted", Value: true},
			{Path: "updatedAt", Value: time.Now()},
		})
	})
	if err != nil {
		return false, translate(err, "update", "transaction")
	}
	return changed, nil
}

// SoftDeleteByAccounts marks every live entry of the given accounts deleted
// and reports how many rows changed.
func (s *transactionStore) SoftDeleteByAccounts(ctx context.Context, uid string, accountIDs []string) (int, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	now := time.Now()

	for start := 0; start < len(accountIDs); start += maxInValues {
		chunk := accountIDs[start:min(start+maxInValues, len(accountIDs))]
		docs, err := s.txCollection(uid).
			Where("accountId", "in", chunk).
			Where("isDeleted", "==", false).
			Documents(ctx).GetAll()
		if err != nil {
			bw.End()
			return 0, errs.NewDatabaseError("read", "failed to list account transactions", err)
		}
		for _, d := range docs {
			job, err := bw.Update(d.Ref, []firestore.Update{
				{Path: "isDeleted", Value: true},
				{Path: "updatedAt", Value: now},
			})
			if err != nil {
				bw.End()
				return 0, errs.NewDatabaseError("update", "failed to delete transaction", err)
			}
			jobs = append(jobs, job)
		}
	}

	// Flush and close the writer, then wait on each job for errors.
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, errs.NewDatabaseError("update", "failed to delete transaction", err)
		}
	}
	return len(jobs), nil
}

// Query streams matching entries. Equality and date filters run in
// Firestore; amount range, name search and paging are applied while
// streaming. The error channel yields at most one error and both channels
// are closed when the stream ends.
func (s *transactionStore) Query(ctx context.Context, uid string, q dto.TransactionQuery) (<-chan *models.Transaction, <-chan error) {
	txCh := make(chan *models.Transaction, queryBuffer)
	errCh := make(chan error, 1)

	query := s.buildQuery(uid, q)

	go func() {
		defer close(txCh)
		defer close(errCh)

		iter := query.Documents(ctx)
		defer iter.Stop()

		skipped, sent := 0, 0
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				errCh <- errs.NewDatabaseError("read", "failed to query transactions", err)
				return
			}
			tx, err := decodeTransaction(snap)
			if err != nil {
				errCh <- err
				return
			}
			if !matches(tx, q) {
				continue
			}
			if skipped < q.Offset {
				skipped++
				continue
			}
			select {
			case txCh <- tx:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			sent++
			if q.Limit > 0 && sent >= q.Limit {
				return
			}
		}
	}()

	return txCh, errCh
}

func (s *transactionStore) buildQuery(uid string, q dto.TransactionQuery) firestore.Query {
	query := s.txCollection(uid).Query
	if !q.IncludeDeleted {
		query = query.Where("isDeleted", "==", false)
	}
	if q.Category != nil {
		query = query.Where("category", "==", string(*q.Category))
	}
	if q.Type != nil {
		query = query.Where("type", "==", string(*q.Type))
	}
	if q.AccountID != nil {
		query = query.Where("accountId", "==", *q.AccountID)
	} else if n := len(q.AccountIDs); n > 0 && n <= maxInValues {
		query = query.Where("accountId", "in", q.AccountIDs)
	}
	if q.DateFrom != nil {
		query = query.Where("date", ">=", *q.DateFrom)
	}
	if q.DateTo != nil {
		query = query.Where("date", "<=", *q.DateTo)
	}

	dir := firestore.Asc
	if q.Desc {
		dir = firestore.Desc
	}
	switch q.OrderBy {
	case "amount", "name", "createdAt":
		if q.DateFrom != nil || q.DateTo != nil {
			// Firestore wants the range field ordered first.
			query = query.OrderBy("date", dir)
		}
		query = query.OrderBy(q.OrderBy, dir)
	default:
		query = query.OrderBy("date", dir)
	}
	return query
}

func matches(tx *models.Transaction, q dto.TransactionQuery) bool {
	if q.MinAmount != nil && tx.Amount < *q.MinAmount {
		return false
	}
	if q.MaxAmount != nil && tx.Amount > *q.MaxAmount {
		return false
	}
	if q.Search != nil && *q.Search != "" &&
		!strings.Contains(strings.ToLower(tx.Name), strings.ToLower(*q.Search)) {
		return false
	}
	if q.AccountID == nil && len(q.AccountIDs) > maxInValues && !contains(q.AccountIDs, tx.AccountID) {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func decodeTransaction(snap *firestore.DocumentSnapshot) (*models.Transaction, error) {
	var tx models.Transaction
	if err := snap.DataTo(&tx); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse transaction data", err)
	}
	return &tx, nil
}
