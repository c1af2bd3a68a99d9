package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/internal/models"
)

// events is a shared, ordered log of store mutations so tests can assert on
// the order in which the reconciler touches storage.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) index(entry string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, v := range e.log {
		if v == entry {
			return i
		}
	}
	return -1
}

// --- fake ledger ---

type fakeLedger struct {
	mu        sync.Mutex
	rows      map[string]*models.Transaction // key uid/id
	events    *events
	createErr error
	raceOn    map[string]bool // ids whose Create reports AlreadyExists
	// interleave runs once at the start of the next Update, standing in for
	// a writer that commits while the caller is working.
	interleave func(rows map[string]*models.Transaction)
}

func newFakeLedger(ev *events) *fakeLedger {
	return &fakeLedger{rows: map[string]*models.Transaction{}, raceOn: map[string]bool{}, events: ev}
}

func key(uid, id string) string { return uid + "/" + id }

func (f *fakeLedger) put(tx models.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[key(tx.UserID, tx.TransactionID)] = &tx
}

func (f *fakeLedger) row(uid, id string) *models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.rows[key(uid, id)]; ok {
		cp := *tx
		return &cp
	}
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeLedger) GetByExternalID(_ context.Context, uid, externalID string) (*models.Transaction, error) {
	tx := f.row(uid, externalID)
	if tx == nil || tx.ExternalID != externalID {
		return nil, errs.NewNotFoundError("transaction not found")
	}
	return tx, nil
}

func (f *fakeLedger) Get(_ context.Context, uid, id string) (*models.Transaction, error) {
	tx := f.row(uid, id)
	if tx == nil {
		return nil, errs.NewNotFoundError("transaction not found")
	}
	return tx, nil
}

func (f *fakeLedger) Create(_ context.Context, tx *models.Transaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceOn[tx.TransactionID] {
		return errs.NewAlreadyExistsError("transaction already exists")
	}
	k := key(tx.UserID, tx.TransactionID)
	if _, ok := f.rows[k]; ok {
		return errs.NewAlreadyExistsError("transaction already exists")
	}
	cp := *tx
	f.rows[k] = &cp
	f.events.add("create %s", tx.TransactionID)
	return nil
}

func (f *fakeLedger) Update(_ context.Context, uid, id string, apply func(tx *models.Transaction) error) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hook := f.interleave; hook != nil {
		f.interleave = nil
		hook(f.rows)
	}
	k := key(uid, id)
	cur, ok := f.rows[k]
	if !ok {
		return nil, errs.NewNotFoundError("transaction not found")
	}
	cp := *cur
	if err := apply(&cp); err != nil {
		return nil, err
	}
	f.rows[k] = &cp
	f.events.add("update %s", id)
	out := cp
	return &out, nil
}

func (f *fakeLedger) SoftDelete(_ context.Context, uid, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[key(uid, id)]
	if !ok {
		return false, errs.NewNotFoundError("transaction not found")
	}
	if tx.IsDeleted {
		return false, nil
	}
	tx.IsDeleted = true
	f.events.add("delete %s", id)
	return true, nil
}

func (f *fakeLedger) SoftDeleteByAccounts(_ context.Context, uid string, accountIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.rows {
		if tx.UserID != uid || tx.IsDeleted {
			continue
		}
		for _, id := range accountIDs {
			if tx.AccountID == id {
				tx.IsDeleted = true
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeLedger) Query(_ context.Context, uid string, q dto.TransactionQuery) (<-chan *models.Transaction, <-chan error) {
	f.mu.Lock()
	var out []*models.Transaction
	for _, tx := range f.rows {
		if tx.UserID != uid || (tx.IsDeleted && !q.IncludeDeleted) {
			continue
		}
		if q.Category != nil && tx.Category != *q.Category {
			continue
		}
		if q.Type != nil && tx.Type != *q.Type {
			continue
		}
		if q.DateFrom != nil && tx.Date < *q.DateFrom {
			continue
		}
		if q.DateTo != nil && tx.Date > *q.DateTo {
			continue
		}
		if q.AccountID != nil && tx.AccountID != *q.AccountID {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	if q.Offset > 0 {
		out = out[min(q.Offset, len(out)):]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	txCh := make(chan *models.Transaction, len(out))
	errCh := make(chan error, 1)
	for _, tx := range out {
		txCh <- tx
	}
	close(txCh)
	close(errCh)
	return txCh, errCh
}

// --- fake accounts ---

type fakeAccounts struct {
	mu        sync.Mutex
	rows      map[string]*models.Account
	creates   int
	updates   int
	createErr error
}

func newFakeAccounts(accs ...models.Account) *fakeAccounts {
	f := &fakeAccounts{rows: map[string]*models.Account{}}
	for _, a := range accs {
		a := a
		f.rows[key(a.UserID, a.AccountID)] = &a
	}
	return f
}

func (f *fakeAccounts) GetByExternalID(_ context.Context, uid, externalID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[key(uid, externalID)]
	if !ok || a.ExternalAccountID != externalID {
		return nil, errs.NewNotFoundError("account not found")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) Get(ctx context.Context, uid, accountID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[key(uid, accountID)]
	if !ok {
		return nil, errs.NewNotFoundError("account not found")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) Create(_ context.Context, acc *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	k := key(acc.UserID, acc.AccountID)
	if _, ok := f.rows[k]; ok {
		return errs.NewAlreadyExistsError("account already exists")
	}
	cp := *acc
	f.rows[k] = &cp
	f.creates++
	return nil
}

func (f *fakeAccounts) UpdateBalance(_ context.Context, uid, accountID string, bal models.Balance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[key(uid, accountID)]
	if !ok {
		return errs.NewNotFoundError("account not found")
	}
	a.Balance = bal
	a.IsActive = true
	f.updates++
	return nil
}

func (f *fakeAccounts) List(_ context.Context, uid string) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Account
	for _, a := range f.rows {
		if a.UserID == uid && a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (f *fakeAccounts) DeactivateByItem(_ context.Context, uid, itemID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, a := range f.rows {
		if a.UserID == uid && a.ItemID == itemID {
			a.IsActive = false
			ids = append(ids, a.AccountID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- fake items ---

type fakeItems struct {
	mu        sync.Mutex
	rows      map[string]*models.LinkedItem
	events    *events
	cursorErr error
	cursors   []string
}

func newFakeItems(ev *events, items ...*models.LinkedItem) *fakeItems {
	f := &fakeItems{rows: map[string]*models.LinkedItem{}, events: ev}
	for _, it := range items {
		cp := *it
		cp.AccountIDs = append([]string(nil), it.AccountIDs...)
		f.rows[key(it.UserID, it.ItemID)] = &cp
	}
	return f
}

func (f *fakeItems) item(uid, itemID string) *models.LinkedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.rows[key(uid, itemID)]
	if !ok {
		return nil
	}
	cp := *it
	return &cp
}

func (f *fakeItems) with(uid, itemID string, fn func(*models.LinkedItem)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.rows[key(uid, itemID)]
	if !ok {
		return errs.NewNotFoundError("linked item not found")
	}
	fn(it)
	return nil
}

func (f *fakeItems) Create(_ context.Context, item *models.LinkedItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(item.UserID, item.ItemID)
	if _, ok := f.rows[k]; ok {
		return errs.NewAlreadyExistsError("linked item already exists")
	}
	cp := *item
	f.rows[k] = &cp
	return nil
}

func (f *fakeItems) Get(_ context.Context, uid, itemID string) (*models.LinkedItem, error) {
	it := f.item(uid, itemID)
	if it == nil {
		return nil, errs.NewNotFoundError("linked item not found")
	}
	return it, nil
}

func (f *fakeItems) FindByItemID(_ context.Context, itemID string) (*models.LinkedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.rows {
		if it.ItemID == itemID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, errs.NewNotFoundError("linked item not found")
}

func (f *fakeItems) ListActive(_ context.Context, uid string) ([]*models.LinkedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LinkedItem
	for _, it := range f.rows {
		if it.UserID == uid && it.IsActive {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (f *fakeItems) SetCursor(_ context.Context, uid, itemID, cursor string) error {
	if f.cursorErr != nil {
		return f.cursorErr
	}
	f.events.add("cursor %s", cursor)
	return f.with(uid, itemID, func(it *models.LinkedItem) {
		it.Cursor = &cursor
		f.cursors = append(f.cursors, cursor)
	})
}

func (f *fakeItems) SetStatus(_ context.Context, uid, itemID string, status models.ItemStatus, itemErr *models.ItemError) error {
	return f.with(uid, itemID, func(it *models.LinkedItem) {
		it.Status = status
		it.Error = itemErr
	})
}

func (f *fakeItems) MarkSynced(_ context.Context, uid, itemID string, at time.Time) error {
	return f.with(uid, itemID, func(it *models.LinkedItem) {
		it.Status = models.ItemStatusGood
		it.Error = nil
		it.LastUpdated = at
	})
}

func (f *fakeItems) AddAccount(_ context.Context, uid, itemID, accountID string) error {
	return f.with(uid, itemID, func(it *models.LinkedItem) {
		if !it.HasAccount(accountID) {
			it.AccountIDs = append(it.AccountIDs, accountID)
		}
	})
}

func (f *fakeItems) SetAccessToken(_ context.Context, uid, itemID, sealed string) error {
	return f.with(uid, itemID, func(it *models.LinkedItem) { it.AccessToken = sealed })
}

func (f *fakeItems) Deactivate(_ context.Context, uid, itemID string) error {
	return f.with(uid, itemID, func(it *models.LinkedItem) {
		it.IsActive = false
		it.AccessToken = ""
	})
}

func (f *fakeItems) Reactivate(_ context.Context, uid, itemID, sealed string) error {
	return f.with(uid, itemID, func(it *models.LinkedItem) {
		it.IsActive = true
		it.AccessToken = sealed
		it.Status = models.ItemStatusGood
		it.Error = nil
		it.Cursor = nil
	})
}

// --- fake aggregator ---

type fetchCall struct {
	initial    bool
	token      string
	cursor     string
	start, end time.Time
}

// fakeAggregator serves scripted changeset pages keyed by the cursor they
// were requested with ("" for the initial fetch).
type fakeAggregator struct {
	mu       sync.Mutex
	pages    map[string]dto.SyncPage
	errs     map[string]error
	calls    []fetchCall
	accounts map[string][]dto.ExternalAccount // by access token
	onFetch  func(call fetchCall)

	linkToken   string
	itemID      string
	accessToken string
	removed     []string
	removeErr   error
	accountsErr error
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{
		pages:    map[string]dto.SyncPage{},
		errs:     map[string]error{},
		accounts: map[string][]dto.ExternalAccount{},
	}
}

func (f *fakeAggregator) serve(call fetchCall) (dto.SyncPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	page, ok := f.pages[call.cursor]
	err := f.errs[call.cursor]
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if err != nil {
		return dto.SyncPage{}, err
	}
	if !ok {
		return dto.SyncPage{NextCursor: call.cursor}, nil
	}
	return page, nil
}

func (f *fakeAggregator) FetchInitial(_ context.Context, accessToken string, start, end time.Time) (dto.SyncPage, error) {
	return f.serve(fetchCall{initial: true, token: accessToken, start: start, end: end})
}

func (f *fakeAggregator) FetchIncremental(_ context.Context, accessToken, cursor string) (dto.SyncPage, error) {
	return f.serve(fetchCall{token: accessToken, cursor: cursor})
}

func (f *fakeAggregator) GetAccounts(_ context.Context, accessToken string) ([]dto.ExternalAccount, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[accessToken], nil
}

func (f *fakeAggregator) CreateLinkToken(_ context.Context, uid, accessToken string) (string, error) {
	if accessToken != "" {
		return f.linkToken + "-update-" + accessToken, nil
	}
	return f.linkToken, nil
}

func (f *fakeAggregator) ExchangePublicToken(_ context.Context, publicToken string) (string, string, error) {
	if publicToken == "bad" {
		return "", "", errs.NewExternalServiceError("plaid", "INVALID_PUBLIC_TOKEN", false, nil)
	}
	return f.itemID, f.accessToken, nil
}

func (f *fakeAggregator) RemoveItem(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, accessToken)
	return f.removeErr
}

func (f *fakeAggregator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- fake vault ---

type fakeVault struct {
	discarded []string
	openErr   error
}

func (v *fakeVault) Seal(_ context.Context, uid, itemID, token string) (string, error) {
	return "sealed:" + token, nil
}

func (v *fakeVault) Open(_ context.Context, uid, itemID, sealed string) (string, error) {
	if v.openErr != nil {
		return "", v.openErr
	}
	if len(sealed) < len("sealed:") {
		return "", errs.NewEncryptionError("bad token", nil)
	}
	return sealed[len("sealed:"):], nil
}

func (v *fakeVault) Discard(_ context.Context, uid, itemID string) error {
	v.discarded = append(v.discarded, itemID)
	return nil
}
