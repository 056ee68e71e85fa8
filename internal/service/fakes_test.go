package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/events"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
	"tradebybarter-ledger/pkg/db"
)

var errNotUsed = errors.New("not used by in-memory repositories")

// memState is everything the in-memory store persists.
type memState struct {
	users     map[string]domain.User
	offers    map[string]domain.Offer
	wallets   map[string]domain.Wallet
	txns      []domain.Transaction
	escrows   map[string]domain.Escrow
	nextID    int64
	nextTxnID int64
}

func (s memState) clone() memState {
	c := memState{
		users:     make(map[string]domain.User, len(s.users)),
		offers:    make(map[string]domain.Offer, len(s.offers)),
		wallets:   make(map[string]domain.Wallet, len(s.wallets)),
		txns:      append([]domain.Transaction(nil), s.txns...),
		escrows:   make(map[string]domain.Escrow, len(s.escrows)),
		nextID:    s.nextID,
		nextTxnID: s.nextTxnID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	return c
}

// memStore serializes transactions like a database would with row locks, and
// restores a snapshot on rollback.
type memStore struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	state  memState
	failOn map[string]error
	begins int
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			users:   map[string]domain.User{},
			offers:  map[string]domain.Offer{},
			wallets: map[string]domain.Wallet{},
			escrows: map[string]domain.Escrow{},
		},
		failOn: map[string]error{},
	}
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

func (m *memStore) begin(context.Context, db.DBTxBeginner) (db.TxController, error) {
	if err := m.fail("Begin"); err != nil {
		return nil, err
	}
	m.txMu.Lock()
	m.mu.Lock()
	snapshot := m.state.clone()
	m.begins++
	m.mu.Unlock()
	return &memTx{store: m, snapshot: snapshot}, nil
}

func (m *memStore) addUser(id string, active, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[id] = domain.User{ID: id, Email: id + "@example.com", Role: domain.RoleUser, IsActive: active, IsBlocked: blocked}
}

func (m *memStore) addOffer(o domain.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.offers[o.ID] = o
}

// seedWallet creates a wallet with an opening balance, bypassing the ledger.
func (m *memStore) seedWallet(userID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	m.state.wallets[userID] = domain.Wallet{ID: m.state.nextID, UserID: userID, Balance: balance}
}

func (m *memStore) wallet(userID string) domain.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.wallets[userID]
}

func (m *memStore) escrow(id string) domain.Escrow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.escrows[id]
}

func (m *memStore) transactions(userID string) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.state.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (m *memStore) totalBalance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, w := range m.state.wallets {
		total += w.Balance + w.EscrowBalance
	}
	return total
}

// memTx is the transaction handle. It also satisfies repository.DBExecutor so the
// service's type assertion succeeds; the in-memory repositories ignore it.
type memTx struct {
	store    *memStore
	snapshot memState
	done     bool
	memExecutor
}

func (t *memTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	if err := t.store.fail("Commit"); err != nil {
		return err
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.store.mu.Lock()
	t.store.state = t.snapshot
	t.store.mu.Unlock()
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

type memExecutor struct{}

func (memExecutor) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errNotUsed
}
func (memExecutor) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errNotUsed
}
func (memExecutor) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotUsed
}
func (memExecutor) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return &sql.Row{}
}

type memUserRepo struct{ *memStore }

func (r memUserRepo) GetUserByID(_ context.Context, _ repository.DBExecutor, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.state.users[id]
	if !ok {
		return nil, util.ErrUserNotFound
	}
	return &u, nil
}

type memOfferRepo struct{ *memStore }

func (r memOfferRepo) GetOfferByID(_ context.Context, _ repository.DBExecutor, id string) (*domain.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.offers[id]
	if !ok {
		return nil, util.ErrOfferNotFound
	}
	return &o, nil
}

type memWalletRepo struct{ *memStore }

func (r memWalletRepo) CreateWalletIfNotExists(_ context.Context, _ repository.DBExecutor, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.wallets[userID]; !ok {
		r.state.nextID++
		r.state.wallets[userID] = domain.Wallet{ID: r.state.nextID, UserID: userID}
	}
	return nil
}

func (r memWalletRepo) GetWalletByUserID(_ context.Context, _ repository.DBExecutor, userID string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.state.wallets[userID]
	if !ok {
		return nil, util.ErrWalletNotFound
	}
	return &w, nil
}

func (r memWalletRepo) GetWalletByUserIDForUpdate(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Wallet, error) {
	return r.GetWalletByUserID(ctx, q, userID)
}

func (r memWalletRepo) ApplyBalanceEffect(_ context.Context, _ repository.DBExecutor, userID string, effect domain.BalanceEffect, at time.Time) (*domain.Wallet, error) {
	if err := r.fail("ApplyBalanceEffect"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.state.wallets[userID]
	if !ok {
		return nil, util.ErrWalletNotFound
	}
	next, ok := applyEffect(w, effect, at)
	if !ok {
		return nil, util.ErrInsufficientFunds
	}
	r.state.wallets[userID] = next
	return &next, nil
}

type memTransactionRepo struct{ *memStore }

func (r memTransactionRepo) CreateTransaction(_ context.Context, _ repository.DBExecutor, t *domain.Transaction) error {
	if err := r.fail("CreateTransaction"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.txns {
		sameEntry := existing.UserID == t.UserID && existing.Reference == t.Reference && existing.Type == t.Type
		sameTopUp := t.Type == domain.TransactionTypeWalletTopUp && existing.Type == t.Type && existing.Reference == t.Reference
		if sameEntry || sameTopUp {
			return util.ErrDuplicateReference
		}
	}
	r.state.nextTxnID++
	t.ID = r.state.nextTxnID
	r.state.txns = append(r.state.txns, *t)
	return nil
}

func (r memTransactionRepo) filtered(f domain.TransactionFilter) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range r.state.txns {
		if t.UserID != f.UserID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r memTransactionRepo) ListTransactions(_ context.Context, _ repository.DBExecutor, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.filtered(f)
	page := []domain.Transaction{}
	for i := f.Offset; i < len(all) && i < f.Offset+f.Limit; i++ {
		page = append(page, all[i])
	}
	return page, int64(len(all)), nil
}

func (r memTransactionRepo) SummarizeTransactions(_ context.Context, _ repository.DBExecutor, f domain.TransactionFilter) (domain.TransactionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s domain.TransactionSummary
	for _, t := range r.filtered(f) {
		if t.Status != domain.TransactionStatusCompleted {
			continue
		}
		if isCredit(t.Type) {
			s.TotalCredits += t.Amount
		} else {
			s.TotalDebits += t.Amount
		}
	}
	s.NetAmount = s.TotalCredits - s.TotalDebits
	return s, nil
}

func (r memTransactionRepo) GetTransactionStats(_ context.Context, _ repository.DBExecutor, userID string) (domain.WalletStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s domain.WalletStats
	for _, t := range r.state.txns {
		if t.UserID != userID {
			continue
		}
		s.TotalTransactions++
		switch t.Status {
		case domain.TransactionStatusCompleted:
			s.CompletedTransactions++
			if isCredit(t.Type) {
				s.TotalCredits += t.Amount
			} else {
				s.TotalDebits += t.Amount
			}
		case domain.TransactionStatusPending, domain.TransactionStatusProcessing:
			s.PendingTransactions++
		}
	}
	return s, nil
}

func (r memTransactionRepo) ExistsByReference(_ context.Context, _ repository.DBExecutor, txType domain.TransactionType, reference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.state.txns {
		if t.Type == txType && t.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

type memEscrowRepo struct{ *memStore }

func (r memEscrowRepo) CreateEscrow(_ context.Context, _ repository.DBExecutor, e *domain.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.escrows {
		if existing.OfferID == e.OfferID {
			return util.ErrEscrowExists
		}
	}
	r.state.escrows[e.ID] = *e
	return nil
}

func (r memEscrowRepo) GetEscrowByID(_ context.Context, _ repository.DBExecutor, id string) (*domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.escrows[id]
	if !ok {
		return nil, util.ErrEscrowNotFound
	}
	return &e, nil
}

func (r memEscrowRepo) GetEscrowByIDForUpdate(ctx context.Context, q repository.DBExecutor, id string) (*domain.Escrow, error) {
	return r.GetEscrowByID(ctx, q, id)
}

func (r memEscrowRepo) GetEscrowByOfferID(_ context.Context, _ repository.DBExecutor, offerID string) (*domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.state.escrows {
		if e.OfferID == offerID {
			return &e, nil
		}
	}
	return nil, util.ErrEscrowNotFound
}

func (r memEscrowRepo) ListEscrowsByUser(_ context.Context, _ repository.DBExecutor, userID string) ([]domain.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Escrow{}
	for _, e := range r.state.escrows {
		if e.BuyerID == userID || e.SellerID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memEscrowRepo) CountActiveEscrows(_ context.Context, _ repository.DBExecutor, userID string) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var asBuyer, asSeller int64
	for _, e := range r.state.escrows {
		if e.Status != domain.EscrowStatusCreated && e.Status != domain.EscrowStatusFunded {
			continue
		}
		if e.BuyerID == userID {
			asBuyer++
		}
		if e.SellerID == userID {
			asSeller++
		}
	}
	return asBuyer, asSeller, nil
}

func (r memEscrowRepo) UpdateEscrow(_ context.Context, _ repository.DBExecutor, e *domain.Escrow, expected domain.EscrowStatus) error {
	if err := r.fail("UpdateEscrow"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.state.escrows[e.ID]
	if !ok || current.Status != expected || current.Version != e.Version {
		return util.ErrInvalidState
	}
	e.Version++
	r.state.escrows[e.ID] = *e
	return nil
}

func (r memEscrowRepo) ListExpiredEscrowIDs(_ context.Context, _ repository.DBExecutor, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.Escrow
	for _, e := range r.state.escrows {
		if e.IsExpired(now) {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	ids := []string{}
	for i := 0; i < len(expired) && i < limit; i++ {
		ids = append(ids, expired[i].ID)
	}
	return ids, nil
}

// recordingPublisher captures published event types.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.Type)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// testEnv wires both services to one in-memory store.
type testEnv struct {
	store     *memStore
	wallets   *walletService
	escrows   *escrowService
	publisher *recordingPublisher
	clock     time.Time
}

func (e *testEnv) now() time.Time { return e.clock }

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func newTestEnv() *testEnv {
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:     store,
		publisher: &recordingPublisher{},
		clock:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	ws := NewWalletService(
		nil, memExecutor{},
		memUserRepo{store}, memWalletRepo{store}, memTransactionRepo{store}, memEscrowRepo{store},
		store.begin, db.CommitTx, db.RollbackTx,
		env.publisher, logger,
	).(*walletService)
	ws.now = env.now

	es := NewEscrowService(
		nil, memExecutor{},
		memOfferRepo{store}, memEscrowRepo{store}, memWalletRepo{store}, ws,
		store.begin, db.CommitTx, db.RollbackTx,
		DefaultEscrowSettings(), env.publisher, logger,
	).(*escrowService)
	es.now = env.now

	env.wallets = ws
	env.escrows = es
	return env
}

func int64Ptr(v int64) *int64 { return &v }

// applyEffect mirrors the guarded UPDATE in wallet_pg.go.
func applyEffect(w domain.Wallet, e domain.BalanceEffect, at time.Time) (domain.Wallet, bool) {
	w.Balance += e.Balance
	w.EscrowBalance += e.EscrowBalance
	w.TotalEarned += e.TotalEarned
	w.TotalSpent += e.TotalSpent
	w.Version++
	w.LastTransactionAt = &at
	w.UpdatedAt = at
	return w, w.Balance >= 0 && w.EscrowBalance >= 0
}

func isCredit(t domain.TransactionType) bool {
	return slices.Contains(domain.CreditTransactionTypes, t)
}
