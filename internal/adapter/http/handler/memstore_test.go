package handler_test

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is a test-only store with row locks held until commit or rollback.
// Writes apply immediately and are undone on rollback. Uniqueness rules mirror the schema.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]domain.User
	wallets  map[uuid.UUID]domain.Wallet
	txns     map[uuid.UUID]domain.Transaction
	keys     map[uuid.UUID]domain.APIKey
	idemp    map[string]domain.IdempotencyLog
	events   []domain.WebhookEvent
	audits   []domain.AuditLog
	rowLocks map[string]chan struct{}
	lockWait time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]domain.User),
		wallets:  make(map[uuid.UUID]domain.Wallet),
		txns:     make(map[uuid.UUID]domain.Transaction),
		keys:     make(map[uuid.UUID]domain.APIKey),
		idemp:    make(map[string]domain.IdempotencyLog),
		rowLocks: make(map[string]chan struct{}),
		lockWait: 5 * time.Second,
	}
}

// --- Transactions ---

// memTx implements the parts of pgx.Tx the services call.
type memTx struct {
	pgx.Tx
	store *memStore
	held  []string
	undo  []func()
	done  bool
}

func (s *memStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{store: s}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()
	t.undo = nil
	t.release()
	return nil
}

func (t *memTx) release() {
	for _, key := range t.held {
		t.store.mu.Lock()
		ch := t.store.rowLocks[key]
		t.store.mu.Unlock()
		<-ch
	}
	t.held = nil
}

// lockRow blocks until tx holds key, like SELECT ... FOR UPDATE with a lock_timeout.
func (s *memStore) lockRow(ctx context.Context, tx pgx.Tx, key string) error {
	mt, ok := tx.(*memTx)
	if !ok || slices.Contains(mt.held, key) {
		return nil
	}

	s.mu.Lock()
	ch, ok := s.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[key] = ch
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		mt.held = append(mt.held, key)
		return nil
	case <-timer.C:
		return domain.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onRollback registers an undo step. Callers hold s.mu.
func (s *memStore) onRollback(tx pgx.Tx, fn func()) {
	if mt, ok := tx.(*memTx); ok {
		mt.undo = append(mt.undo, fn)
	}
}

// --- Users ---

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return domain.ErrDuplicate
		}
	}
	r.s.users[user.ID] = *user
	r.s.onRollback(tx, func() { delete(r.s.users, user.ID) })
	return nil
}

func (r memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	if err := r.s.lockRow(ctx, tx, "user:"+id.String()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// --- Wallets ---

type memWalletRepo struct{ s *memStore }

func (r memWalletRepo) Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.WalletNumber == wallet.WalletNumber || w.UserID == wallet.UserID {
			return domain.ErrDuplicate
		}
	}
	r.s.wallets[wallet.ID] = *wallet
	r.s.onRollback(tx, func() { delete(r.s.wallets, wallet.ID) })
	return nil
}

func (r memWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r memWalletRepo) find(match func(domain.Wallet) bool) *domain.Wallet {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if match(w) {
			return &w
		}
	}
	return nil
}

func (r memWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return r.find(func(w domain.Wallet) bool { return w.UserID == userID }), nil
}

func (r memWalletRepo) GetByWalletNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error) {
	return r.find(func(w domain.Wallet) bool { return w.WalletNumber == walletNumber }), nil
}

func (r memWalletRepo) WalletNumberExists(ctx context.Context, tx pgx.Tx, walletNumber string) (bool, error) {
	w, _ := r.GetByWalletNumber(ctx, walletNumber)
	return w != nil, nil
}

func (r memWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	if err := r.s.lockRow(ctx, tx, "wallet:"+id.String()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r memWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error {
	if balance < 0 {
		return domain.ErrConstraint
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return errors.New("wallet not found")
	}
	prev := w.Balance
	w.Balance = balance
	r.s.wallets[walletID] = w
	r.s.onRollback(tx, func() {
		w := r.s.wallets[walletID]
		w.Balance = prev
		r.s.wallets[walletID] = w
	})
	return nil
}

// --- Ledger records ---

type memTransactionRepo struct{ s *memStore }

func (r memTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.txns {
		if existing.Reference == t.Reference && existing.Kind == t.Kind {
			return domain.ErrDuplicate
		}
		if t.ProviderEventID != nil && existing.ProviderEventID != nil && *existing.ProviderEventID == *t.ProviderEventID {
			return domain.ErrDuplicate
		}
	}
	r.s.txns[t.ID] = *t
	r.s.onRollback(tx, func() { delete(r.s.txns, t.ID) })
	return nil
}

func (r memTransactionRepo) GetByReference(ctx context.Context, reference string, kind domain.TransactionKind) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txns {
		if t.Reference == reference && t.Kind == kind {
			return &t, nil
		}
	}
	return nil, nil
}

func (r memTransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string, kind domain.TransactionKind) (*domain.Transaction, error) {
	found, err := r.GetByReference(ctx, reference, kind)
	if err != nil || found == nil {
		return found, err
	}
	if err := r.s.lockRow(ctx, tx, "txn:"+found.ID.String()); err != nil {
		return nil, err
	}
	// Re-read after the lock so a concurrent settlement is visible.
	return r.GetByReference(ctx, reference, kind)
}

func (r memTransactionRepo) GetByProviderEventID(ctx context.Context, tx pgx.Tx, providerEventID string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txns {
		if t.ProviderEventID != nil && *t.ProviderEventID == providerEventID {
			return &t, nil
		}
	}
	return nil, nil
}

func (r memTransactionRepo) transition(tx pgx.Tx, id uuid.UUID, apply func(*domain.Transaction) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txns[id]
	if !ok || t.Status != domain.TransactionStatusPending {
		return domain.ErrNotPending
	}
	prev := t
	if err := apply(&t); err != nil {
		return err
	}
	r.s.txns[id] = t
	r.s.onRollback(tx, func() { r.s.txns[id] = prev })
	return nil
}

func (r memTransactionRepo) MarkSuccess(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerEventID *string, processedAt time.Time) error {
	return r.transition(tx, id, func(t *domain.Transaction) error {
		if providerEventID != nil {
			for otherID, other := range r.s.txns {
				if otherID != id && other.ProviderEventID != nil && *other.ProviderEventID == *providerEventID {
					return domain.ErrDuplicate
				}
			}
		}
		t.Status = domain.TransactionStatusSuccess
		t.ProviderEventID = providerEventID
		t.ProcessedAt = &processedAt
		return nil
	})
}

func (r memTransactionRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, processedAt time.Time) error {
	return r.transition(tx, id, func(t *domain.Transaction) error {
		t.Status = domain.TransactionStatusFailed
		t.ProcessedAt = &processedAt
		return nil
	})
}

func (r memTransactionRepo) List(ctx context.Context, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []domain.Transaction
	for _, t := range r.s.txns {
		if t.WalletID != walletID {
			continue
		}
		if filter.Kind != nil && t.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := min(filter.Offset(), len(matched))
	end := min(start+filter.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r memTransactionRepo) Summary(ctx context.Context, walletID uuid.UUID) (*domain.WalletSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := &domain.WalletSummary{}
	for _, t := range r.s.txns {
		if t.WalletID != walletID {
			continue
		}
		switch t.Status {
		case domain.TransactionStatusPending:
			sum.PendingCount++
			continue
		case domain.TransactionStatusFailed:
			sum.FailedCount++
			continue
		}
		sum.SuccessCount++
		switch t.Kind {
		case domain.TransactionKindDeposit:
			sum.TotalDeposits += t.Amount
		case domain.TransactionKindTransferIn:
			sum.TotalTransferIn += t.Amount
		case domain.TransactionKindTransferOut:
			sum.TotalTransferOut += t.Amount
		}
	}
	return sum, nil
}

// --- API keys ---

type memAPIKeyRepo struct{ s *memStore }

func (r memAPIKeyRepo) Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, k := range r.s.keys {
		if k.KeyHash == key.KeyHash {
			return domain.ErrDuplicate
		}
	}
	stored := *key
	stored.Permissions = slices.Clone(key.Permissions)
	r.s.keys[key.ID] = stored
	r.s.onRollback(tx, func() { delete(r.s.keys, key.ID) })
	return nil
}

func (r memAPIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.keys[id]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (r memAPIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, k := range r.s.keys {
		if k.KeyHash == keyHash {
			return &k, nil
		}
	}
	return nil, nil
}

func (r memAPIKeyRepo) CountActive(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, k := range r.s.keys {
		if k.UserID == userID && k.IsActive(now) {
			n++
		}
	}
	return n, nil
}

func (r memAPIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.APIKey
	for _, k := range r.s.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memAPIKeyRepo) Revoke(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.keys[id]
	if !ok || k.UserID != userID {
		return false, nil
	}
	if !k.IsRevoked {
		k.IsRevoked = true
		k.RevokedAt = &at
		r.s.keys[id] = k
	}
	return true, nil
}

func (r memAPIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if k, ok := r.s.keys[id]; ok {
		k.LastUsedAt = &at
		r.s.keys[id] = k
	}
	return nil
}

// --- Idempotency, webhook receipts, audit ---

type memIdempotencyRepo struct{ s *memStore }

func (r memIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.idemp[log.Key]; exists {
		return domain.ErrDuplicate
	}
	r.s.idemp[log.Key] = *log
	r.s.onRollback(tx, func() { delete(r.s.idemp, log.Key) })
	return nil
}

func (r memIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.idemp[key]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

type memWebhookEventRepo struct{ s *memStore }

func (r memWebhookEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events = append(r.s.events, *event)
	return nil
}

func (r memWebhookEventRepo) ListByProviderEventID(ctx context.Context, providerEventID string) ([]domain.WebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.WebhookEvent
	for _, e := range r.s.events {
		if e.ProviderEventID == providerEventID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *log)
	return nil
}

func (s *memStore) auditActions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

var (
	_ ports.UserRepository         = memUserRepo{}
	_ ports.WalletRepository       = memWalletRepo{}
	_ ports.TransactionRepository  = memTransactionRepo{}
	_ ports.APIKeyRepository       = memAPIKeyRepo{}
	_ ports.IdempotencyRepository  = memIdempotencyRepo{}
	_ ports.WebhookEventRepository = memWebhookEventRepo{}
	_ ports.AuditRepository        = memAuditRepo{}
	_ ports.DBTransactor           = (*memStore)(nil)
)
