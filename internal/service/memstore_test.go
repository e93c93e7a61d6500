package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is an in-memory ledger that emulates row locks held until commit.
// It backs the concurrency tests; the mocks cover everything else.
type memStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]domain.Wallet
	txns     map[uuid.UUID]domain.Transaction
	rowLocks map[string]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		wallets:  make(map[uuid.UUID]domain.Wallet),
		txns:     make(map[uuid.UUID]domain.Transaction),
		rowLocks: make(map[string]*sync.Mutex),
	}
}

func (m *memStore) addWallet(balance int64, number string) domain.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := domain.Wallet{ID: uuid.New(), UserID: uuid.New(), WalletNumber: number, Balance: balance}
	m.wallets[w.ID] = w
	return w
}

func (m *memStore) addTransaction(t domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = t
}

func (m *memStore) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id].Balance
}

func (m *memStore) transactions(walletID uuid.UUID) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out
}

func (m *memStore) rowLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[key] = l
	}
	return l
}

// memTx buffers writes and holds row locks until Commit or Rollback.
type memTx struct {
	pgx.Tx
	store    *memStore
	held     []*sync.Mutex
	balances map[uuid.UUID]int64
	inserts  []domain.Transaction
	updates  map[uuid.UUID]domain.Transaction
	done     bool
}

func (m *memStore) Begin(_ context.Context) (pgx.Tx, error) {
	return &memTx{
		store:    m,
		balances: make(map[uuid.UUID]int64),
		updates:  make(map[uuid.UUID]domain.Transaction),
	}, nil
}

func (t *memTx) lock(key string) {
	l := t.store.rowLock(key)
	l.Lock()
	t.held = append(t.held, l)
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
	t.done = true
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	s := t.store
	s.mu.Lock()
	for id, bal := range t.balances {
		w := s.wallets[id]
		w.Balance = bal
		s.wallets[id] = w
	}
	for _, txn := range t.inserts {
		s.txns[txn.ID] = txn
	}
	for id, txn := range t.updates {
		s.txns[id] = txn
	}
	s.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

// memWalletRepo implements ports.WalletRepository over memStore.
type memWalletRepo struct{ s *memStore }

func (r memWalletRepo) Create(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wallets[w.ID] = *w
	return nil
}

func (r memWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r memWalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, nil
}

func (r memWalletRepo) GetByWalletNumber(_ context.Context, number string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.WalletNumber == number {
			return &w, nil
		}
	}
	return nil, nil
}

func (r memWalletRepo) WalletNumberExists(ctx context.Context, _ pgx.Tx, number string) (bool, error) {
	w, err := r.GetByWalletNumber(ctx, number)
	return w != nil, err
}

func (r memWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	mtx := tx.(*memTx)
	mtx.lock("wallet:" + id.String())
	w, err := r.GetByID(ctx, id)
	if w != nil {
		if bal, ok := mtx.balances[id]; ok {
			w.Balance = bal
		}
	}
	return w, err
}

func (r memWalletRepo) UpdateBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	if balance < 0 {
		return domain.ErrConstraint
	}
	tx.(*memTx).balances[id] = balance
	return nil
}

// memTransactionRepo implements ports.TransactionRepository over memStore.
type memTransactionRepo struct{ s *memStore }

func (r memTransactionRepo) Create(_ context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	mtx := tx.(*memTx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.txns {
		if existing.Reference == txn.Reference && existing.Kind == txn.Kind {
			return domain.ErrDuplicate
		}
	}
	mtx.inserts = append(mtx.inserts, *txn)
	return nil
}

func (r memTransactionRepo) find(match func(domain.Transaction) bool) *domain.Transaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txns {
		if match(t) {
			return &t
		}
	}
	return nil
}

func (r memTransactionRepo) GetByReference(_ context.Context, ref string, kind domain.TransactionKind) (*domain.Transaction, error) {
	return r.find(func(t domain.Transaction) bool { return t.Reference == ref && t.Kind == kind }), nil
}

func (r memTransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, ref string, kind domain.TransactionKind) (*domain.Transaction, error) {
	tx.(*memTx).lock("txn:" + string(kind) + ":" + ref)
	return r.GetByReference(ctx, ref, kind)
}

func (r memTransactionRepo) GetByProviderEventID(_ context.Context, _ pgx.Tx, eventID string) (*domain.Transaction, error) {
	return r.find(func(t domain.Transaction) bool {
		return t.ProviderEventID != nil && *t.ProviderEventID == eventID
	}), nil
}

func (r memTransactionRepo) MarkSuccess(_ context.Context, tx pgx.Tx, id uuid.UUID, eventID *string, at time.Time) error {
	mtx := tx.(*memTx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txns[id]
	if !ok || t.Status != domain.TransactionStatusPending {
		return domain.ErrNotPending
	}
	for _, other := range r.s.txns {
		if eventID != nil && other.ProviderEventID != nil && *other.ProviderEventID == *eventID {
			return domain.ErrDuplicate
		}
	}
	t.Status = domain.TransactionStatusSuccess
	t.ProviderEventID = eventID
	t.ProcessedAt = &at
	mtx.updates[id] = t
	return nil
}

func (r memTransactionRepo) MarkFailed(_ context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	mtx := tx.(*memTx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txns[id]
	if !ok || t.Status != domain.TransactionStatusPending {
		return domain.ErrNotPending
	}
	t.Status = domain.TransactionStatusFailed
	t.ProcessedAt = &at
	mtx.updates[id] = t
	return nil
}

func (r memTransactionRepo) List(_ context.Context, walletID uuid.UUID, _ domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	txns := r.s.transactions(walletID)
	slices.SortFunc(txns, func(a, b domain.Transaction) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return txns, int64(len(txns)), nil
}

func (r memTransactionRepo) Summary(_ context.Context, walletID uuid.UUID) (*domain.WalletSummary, error) {
	var sum domain.WalletSummary
	for _, t := range r.s.transactions(walletID) {
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
	return &sum, nil
}
