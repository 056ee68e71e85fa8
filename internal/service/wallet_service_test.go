// internal/service/wallet_service_test.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/events"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
	"tradebybarter-ledger/pkg/db"
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return m.Called(ctx, dest, query, args).Error(0)
}

func (m *MockDBExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return m.Called(ctx, dest, query, args).Error(0)
}

func (m *MockDBExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	argsCalled := m.Called(ctx, query, args)
	return argsCalled.Get(0).(sql.Result), argsCalled.Error(1)
}

func (m *MockDBExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	m.Called(ctx, query, args)
	return &sql.Row{}
}

// MockTxController is a mock implementation of db.TxController that also
// satisfies repository.DBExecutor by embedding MockDBExecutor.
type MockTxController struct {
	mock.Mock
	MockDBExecutor
}

func (m *MockTxController) Commit() error {
	return m.Called().Error(0)
}

func (m *MockTxController) Rollback() error {
	return m.Called().Error(0)
}

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, q repository.DBExecutor, id string) (*domain.User, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockWalletRepository is a mock implementation of repository.WalletRepository.
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) CreateWalletIfNotExists(ctx context.Context, q repository.DBExecutor, userID string) error {
	return m.Called(ctx, q, userID).Error(0)
}

func (m *MockWalletRepository) GetWalletByUserID(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Wallet, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetWalletByUserIDForUpdate(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Wallet, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ApplyBalanceEffect(ctx context.Context, q repository.DBExecutor, userID string, effect domain.BalanceEffect, at time.Time) (*domain.Wallet, error) {
	args := m.Called(ctx, q, userID, effect, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

// MockTransactionRepository is a mock implementation of repository.TransactionRepository.
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	return m.Called(ctx, q, transaction).Error(0)
}

func (m *MockTransactionRepository) ListTransactions(ctx context.Context, q repository.DBExecutor, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	args := m.Called(ctx, q, filter)
	return args.Get(0).([]domain.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockTransactionRepository) SummarizeTransactions(ctx context.Context, q repository.DBExecutor, filter domain.TransactionFilter) (domain.TransactionSummary, error) {
	args := m.Called(ctx, q, filter)
	return args.Get(0).(domain.TransactionSummary), args.Error(1)
}

func (m *MockTransactionRepository) GetTransactionStats(ctx context.Context, q repository.DBExecutor, userID string) (domain.WalletStats, error) {
	args := m.Called(ctx, q, userID)
	return args.Get(0).(domain.WalletStats), args.Error(1)
}

func (m *MockTransactionRepository) ExistsByReference(ctx context.Context, q repository.DBExecutor, txType domain.TransactionType, reference string) (bool, error) {
	args := m.Called(ctx, q, txType, reference)
	return args.Bool(0), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockedWalletService wires the service to mocks with the tx lifecycle routed to mockTx.
func newMockedWalletService(users *MockUserRepository, wallets *MockWalletRepository, txns *MockTransactionRepository, mockTx *MockTxController) WalletService {
	return NewWalletService(
		nil,
		new(MockDBExecutor),
		users,
		wallets,
		txns,
		memEscrowRepo{newMemStore()},
		func(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
			return mockTx, nil
		},
		func(tx db.TxController) error {
			return mockTx.Commit()
		},
		func(tx db.TxController) {
			_ = mockTx.Rollback()
		},
		events.NoopPublisher{},
		discardLogger(),
	)
}

func TestTransferFunds(t *testing.T) {
	t.Run("MovesExactAmountAndLogsBothEntries", func(t *testing.T) {
		env := newTestEnv()
		env.store.addUser("buyer", true, false)
		env.store.addUser("recipient", true, false)
		env.store.seedWallet("buyer", 50000)
		before := env.store.totalBalance()

		result, err := env.wallets.TransferFunds(context.Background(), "buyer", TransferInput{
			RecipientID: "recipient",
			Amount:      20000,
			Description: "for the phone",
		})
		require.NoError(t, err)

		assert.Equal(t, int64(30000), result.NewBalance)
		assert.Equal(t, int64(30000), env.store.wallet("buyer").Balance)
		assert.Equal(t, int64(20000), env.store.wallet("recipient").Balance)
		assert.Equal(t, before, env.store.totalBalance())
		assert.Equal(t, int64(20000), env.store.wallet("buyer").TotalSpent)
		assert.Equal(t, int64(20000), env.store.wallet("recipient").TotalEarned)

		sent := env.store.transactions("buyer")
		received := env.store.transactions("recipient")
		require.Len(t, sent, 1)
		require.Len(t, received, 1)
		assert.Equal(t, domain.TransactionTypeTransferSent, sent[0].Type)
		assert.Equal(t, domain.TransactionTypeTransferReceived, received[0].Type)
		assert.Equal(t, result.Reference, sent[0].Reference)
		assert.Equal(t, sent[0].Reference, received[0].Reference)
		assert.Equal(t, int64(30000), sent[0].BalanceAfter)
		assert.Equal(t, []string{events.WalletTransfer}, env.publisher.types())
	})

	t.Run("CreatesRecipientWalletOnFirstCredit", func(t *testing.T) {
		env := newTestEnv()
		env.store.addUser("a", true, false)
		env.store.addUser("b", true, false)
		env.store.seedWallet("a", 10000)

		_, err := env.wallets.TransferFunds(context.Background(), "a", TransferInput{RecipientID: "b", Amount: 10000})
		require.NoError(t, err)
		assert.Equal(t, int64(10000), env.store.wallet("b").Balance)
		assert.Equal(t, int64(0), env.store.wallet("a").Balance)
	})

	t.Run("Rejections", func(t *testing.T) {
		cases := []struct {
			name      string
			from      string
			in        TransferInput
			wantErr   error
			wantExact error
		}{
			{"ZeroAmount", "a", TransferInput{RecipientID: "b", Amount: 0}, util.ErrInvalidInput, util.ErrInvalidAmount},
			{"NegativeAmount", "a", TransferInput{RecipientID: "b", Amount: -5}, util.ErrInvalidInput, util.ErrInvalidAmount},
			{"SelfTransfer", "a", TransferInput{RecipientID: "a", Amount: 100}, util.ErrInvalidInput, util.ErrSelfTransfer},
			{"UnknownRecipient", "a", TransferInput{RecipientID: "ghost", Amount: 100}, util.ErrNotFound, util.ErrRecipientNotFound},
			{"BlockedRecipient", "a", TransferInput{RecipientID: "blocked", Amount: 100}, util.ErrForbidden, util.ErrRecipientInactive},
			{"InactiveRecipient", "a", TransferInput{RecipientID: "inactive", Amount: 100}, util.ErrForbidden, util.ErrRecipientInactive},
			{"InsufficientFunds", "a", TransferInput{RecipientID: "b", Amount: 5001}, util.ErrInsufficientFunds, util.ErrInsufficientFunds},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				env := newTestEnv()
				env.store.addUser("a", true, false)
				env.store.addUser("b", true, false)
				env.store.addUser("blocked", true, true)
				env.store.addUser("inactive", false, false)
				env.store.seedWallet("a", 5000)

				_, err := env.wallets.TransferFunds(context.Background(), tc.from, tc.in)
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.ErrorIs(t, err, tc.wantExact)
				assert.Equal(t, int64(5000), env.store.wallet("a").Balance)
				assert.Empty(t, env.store.transactions("a"))
				assert.Empty(t, env.publisher.types())
			})
		}
	})

	t.Run("LedgerWriteFailureLeavesBalancesUntouched", func(t *testing.T) {
		env := newTestEnv()
		env.store.addUser("a", true, false)
		env.store.addUser("b", true, false)
		env.store.seedWallet("a", 5000)
		env.store.seedWallet("b", 0)
		env.store.failOn["CreateTransaction"] = errors.New("disk full")

		_, err := env.wallets.TransferFunds(context.Background(), "a", TransferInput{RecipientID: "b", Amount: 1000})
		require.Error(t, err)
		assert.NotErrorIs(t, err, util.ErrInsufficientFunds)
		assert.Equal(t, int64(5000), env.store.wallet("a").Balance)
		assert.Equal(t, int64(0), env.store.wallet("b").Balance)
	})

	t.Run("ConcurrentTransfersNeverOverdraw", func(t *testing.T) {
		env := newTestEnv()
		env.store.addUser("a", true, false)
		env.store.addUser("b", true, false)
		env.store.seedWallet("a", 10000)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.wallets.TransferFunds(context.Background(), "a", TransferInput{RecipientID: "b", Amount: 1000})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, util.ErrInsufficientFunds)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, succeeded)
		assert.Equal(t, int64(0), env.store.wallet("a").Balance)
		assert.Equal(t, int64(10000), env.store.wallet("b").Balance)
		assert.Len(t, env.store.transactions("a"), 10)
	})
}

func TestTransferFundsRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mockUserRepo := new(MockUserRepository)
	mockWalletRepo := new(MockWalletRepository)
	mockTransactionRepo := new(MockTransactionRepository)
	mockTxController := new(MockTxController)
	service := newMockedWalletService(mockUserRepo, mockWalletRepo, mockTransactionRepo, mockTxController)

	mockUserRepo.On("GetUserByID", ctx, mock.Anything, "b").Return(&domain.User{ID: "b", IsActive: true}, nil).Once()
	mockWalletRepo.On("CreateWalletIfNotExists", ctx, mock.Anything, mock.Anything).Return(nil).Twice()
	mockWalletRepo.On("GetWalletByUserIDForUpdate", ctx, mock.Anything, "a").Return(&domain.Wallet{UserID: "a", Balance: 5000}, nil).Once()
	mockWalletRepo.On("GetWalletByUserIDForUpdate", ctx, mock.Anything, "b").Return(&domain.Wallet{UserID: "b"}, nil).Once()
	mockWalletRepo.On("ApplyBalanceEffect", ctx, mock.Anything, "a", domain.BalanceEffect{Balance: -1000, TotalSpent: 1000}, mock.Anything).
		Return(&domain.Wallet{UserID: "a", Balance: 4000}, nil).Once()
	mockTransactionRepo.On("CreateTransaction", ctx, mock.Anything, mock.AnythingOfType("*domain.Transaction")).
		Return(util.StorageError("create transaction", sql.ErrConnDone)).Once()
	mockTxController.On("Rollback").Return(nil).Once()

	_, err := service.TransferFunds(ctx, "a", TransferInput{RecipientID: "b", Amount: 1000})

	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrStorage)
	assert.Contains(t, err.Error(), "transfer funds")
	mockTxController.AssertNotCalled(t, "Commit")
	mock.AssertExpectationsForObjects(t, mockUserRepo, mockWalletRepo, mockTransactionRepo, mockTxController)
}

func TestTransferFundsCommitFailure(t *testing.T) {
	ctx := context.Background()
	mockUserRepo := new(MockUserRepository)
	mockWalletRepo := new(MockWalletRepository)
	mockTransactionRepo := new(MockTransactionRepository)
	mockTxController := new(MockTxController)
	service := newMockedWalletService(mockUserRepo, mockWalletRepo, mockTransactionRepo, mockTxController)

	mockUserRepo.On("GetUserByID", ctx, mock.Anything, "b").Return(&domain.User{ID: "b", IsActive: true}, nil)
	mockWalletRepo.On("CreateWalletIfNotExists", ctx, mock.Anything, mock.Anything).Return(nil)
	mockWalletRepo.On("GetWalletByUserIDForUpdate", ctx, mock.Anything, mock.Anything).Return(&domain.Wallet{}, nil)
	mockWalletRepo.On("ApplyBalanceEffect", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&domain.Wallet{}, nil)
	mockTransactionRepo.On("CreateTransaction", ctx, mock.Anything, mock.Anything).Return(nil)
	mockTxController.On("Commit").Return(errors.New("connection reset")).Once()
	mockTxController.On("Rollback").Return(sql.ErrTxDone).Maybe()

	_, err := service.TransferFunds(ctx, "a", TransferInput{RecipientID: "b", Amount: 1000})

	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrStorage)
	mockTransactionRepo.AssertNumberOfCalls(t, "CreateTransaction", 2)
	mockTxController.AssertExpectations(t)
}

func TestGetOrCreateWallet(t *testing.T) {
	env := newTestEnv()

	wallet, err := env.wallets.GetOrCreateWallet(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, "newcomer", wallet.UserID)
	assert.Zero(t, wallet.Balance)
	assert.Zero(t, wallet.EscrowBalance)
	assert.Nil(t, wallet.LastTransactionAt)

	again, err := env.wallets.GetOrCreateWallet(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)

	_, err = env.wallets.GetOrCreateWallet(context.Background(), "")
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestGetWalletInfo(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.store.addUser("a", true, false)
	env.store.addUser("b", true, false)

	_, _, err := env.wallets.TopUpWallet(ctx, "a", 30000, "PSK-1")
	require.NoError(t, err)
	_, err = env.wallets.TransferFunds(ctx, "a", TransferInput{RecipientID: "b", Amount: 5000})
	require.NoError(t, err)

	info, err := env.wallets.GetWalletInfo(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(25000), info.Wallet.Balance)
	assert.Equal(t, int64(2), info.Stats.TotalTransactions)
	assert.Equal(t, int64(2), info.Stats.CompletedTransactions)
	assert.Equal(t, int64(30000), info.Stats.TotalCredits)
	assert.Equal(t, int64(5000), info.Stats.TotalDebits)
	require.NotNil(t, info.Wallet.LastTransactionAt)
}

func TestGetTransactionHistory(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.store.addUser("a", true, false)
	env.store.addUser("b", true, false)

	_, _, err := env.wallets.TopUpWallet(ctx, "a", 100000, "PSK-100")
	require.NoError(t, err)
	for i := 1; i <= 25; i++ {
		env.advance(time.Minute)
		_, err := env.wallets.TransferFunds(ctx, "a", TransferInput{RecipientID: "b", Amount: int64(i * 100)})
		require.NoError(t, err)
	}

	t.Run("FiltersByTypeNewestFirst", func(t *testing.T) {
		history, err := env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{Page: 1, Limit: 20, Type: "TRANSFER_SENT"})
		require.NoError(t, err)

		require.Len(t, history.Transactions, 20)
		for i, tx := range history.Transactions {
			assert.Equal(t, domain.TransactionTypeTransferSent, tx.Type)
			assert.Equal(t, "a", tx.UserID)
			if i > 0 {
				assert.False(t, tx.CreatedAt.After(history.Transactions[i-1].CreatedAt))
			}
		}
		assert.Equal(t, int64(2500), history.Transactions[0].Amount)
		assert.Equal(t, domain.Pagination{Page: 1, Limit: 20, Total: 25, TotalPages: 2}, history.Pagination)
	})

	t.Run("SummaryCoversWholeFilteredSet", func(t *testing.T) {
		history, err := env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{Page: 2, Limit: 20})
		require.NoError(t, err)

		assert.Len(t, history.Transactions, 6)
		// 100+200+...+2500 = 32500 sent across both pages
		assert.Equal(t, int64(100000), history.Summary.TotalCredits)
		assert.Equal(t, int64(32500), history.Summary.TotalDebits)
		assert.Equal(t, int64(67500), history.Summary.NetAmount)
	})

	t.Run("DefaultsAndCaps", func(t *testing.T) {
		history, err := env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, 1, history.Pagination.Page)
		assert.Equal(t, MaxHistoryLimit, history.Pagination.Limit)

		history, err = env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{})
		require.NoError(t, err)
		assert.Equal(t, DefaultHistoryLimit, history.Pagination.Limit)
	})

	t.Run("StatusFilter", func(t *testing.T) {
		history, err := env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{Status: "pending"})
		require.NoError(t, err)
		assert.Empty(t, history.Transactions)
		assert.Zero(t, history.Pagination.Total)
	})

	t.Run("RejectsUnknownFilters", func(t *testing.T) {
		_, err := env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{Type: "GIFT"})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
		_, err = env.wallets.GetTransactionHistory(ctx, "a", HistoryQuery{Status: "DONE"})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})
}

func TestGetTransactionHistoryPassesFilterToRepository(t *testing.T) {
	ctx := context.Background()
	mockTransactionRepo := new(MockTransactionRepository)
	service := newMockedWalletService(new(MockUserRepository), new(MockWalletRepository), mockTransactionRepo, new(MockTxController))

	want := domain.TransactionFilter{
		UserID: "a",
		Type:   domain.TransactionTypeEscrowRelease,
		Status: domain.TransactionStatusCompleted,
		Limit:  10,
		Offset: 20,
	}
	mockTransactionRepo.On("ListTransactions", ctx, mock.Anything, want).Return([]domain.Transaction{}, int64(21), nil).Once()
	mockTransactionRepo.On("SummarizeTransactions", ctx, mock.Anything, want).Return(domain.TransactionSummary{TotalDebits: 7}, nil).Once()

	history, err := service.GetTransactionHistory(ctx, "a", HistoryQuery{Page: 3, Limit: 10, Type: "escrow_release", Status: "COMPLETED"})

	require.NoError(t, err)
	assert.Equal(t, 3, history.Pagination.TotalPages)
	assert.Equal(t, int64(7), history.Summary.TotalDebits)
	mockTransactionRepo.AssertExpectations(t)
}

func TestTopUpAndWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("TopUpIsOncePerPaymentReference", func(t *testing.T) {
		env := newTestEnv()

		wallet, tx, err := env.wallets.TopUpWallet(ctx, "a", 25000, "PSK-abc")
		require.NoError(t, err)
		assert.Equal(t, int64(25000), wallet.Balance)
		assert.Equal(t, "PSK-abc", tx.Reference)
		assert.Equal(t, domain.TransactionTypeWalletTopUp, tx.Type)

		_, _, err = env.wallets.TopUpWallet(ctx, "a", 25000, "PSK-abc")
		assert.ErrorIs(t, err, util.ErrConflict)
		assert.Equal(t, int64(25000), env.store.wallet("a").Balance)
	})

	t.Run("TopUpValidation", func(t *testing.T) {
		env := newTestEnv()
		_, _, err := env.wallets.TopUpWallet(ctx, "a", 0, "PSK-1")
		assert.ErrorIs(t, err, util.ErrInvalidAmount)
		_, _, err = env.wallets.TopUpWallet(ctx, "a", 100, "  ")
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})

	t.Run("Withdraw", func(t *testing.T) {
		env := newTestEnv()
		env.store.seedWallet("a", 9000)

		wallet, tx, err := env.wallets.WithdrawFromWallet(ctx, "a", 4000, "")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), wallet.Balance)
		assert.Equal(t, int64(4000), wallet.TotalSpent)
		assert.Equal(t, domain.TransactionTypeWalletWithdrawal, tx.Type)

		_, _, err = env.wallets.WithdrawFromWallet(ctx, "a", 5001, "payout")
		assert.ErrorIs(t, err, util.ErrInsufficientFunds)
		assert.Equal(t, int64(5000), env.store.wallet("a").Balance)
	})
}

func TestUpdateWalletBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("RejectsUnknownTypeAndBadAmount", func(t *testing.T) {
		env := newTestEnv()
		env.store.seedWallet("a", 100)

		_, _, err := env.wallets.UpdateWalletBalance(ctx, memExecutor{}, BalanceUpdate{UserID: "a", Amount: 10, Type: "GIFT"})
		assert.ErrorIs(t, err, util.ErrInvalidInput)
		_, _, err = env.wallets.UpdateWalletBalance(ctx, memExecutor{}, BalanceUpdate{UserID: "a", Amount: 0, Type: domain.TransactionTypeRefund})
		assert.ErrorIs(t, err, util.ErrInvalidAmount)
	})

	t.Run("EveryMutationWritesOneEntry", func(t *testing.T) {
		env := newTestEnv()
		env.store.seedWallet("a", 100000)
		steps := []domain.TransactionType{
			domain.TransactionTypeEscrowDeposit,
			domain.TransactionTypeEscrowRefund,
			domain.TransactionTypePurchase,
			domain.TransactionTypeRefund,
			domain.TransactionTypeFeeCharge,
			domain.TransactionTypeSale,
		}
		for i, txType := range steps {
			_, tx, err := env.wallets.UpdateWalletBalance(ctx, memExecutor{}, BalanceUpdate{
				UserID: "a", Amount: 1000, Type: txType, Reference: fmt.Sprintf("REF-%d", i),
			})
			require.NoError(t, err, txType)
			assert.Equal(t, env.store.wallet("a").Balance, tx.BalanceAfter)
		}

		w := env.store.wallet("a")
		assert.Len(t, env.store.transactions("a"), len(steps))
		assert.Equal(t, int64(100000-1000+1000-1000+1000-1000+1000), w.Balance)
		assert.Zero(t, w.EscrowBalance)
		assert.Equal(t, int64(2000), w.TotalSpent)
		assert.Equal(t, int64(1000), w.TotalEarned)
	})
}

func TestPublishFailureDoesNotFailTransfer(t *testing.T) {
	env := newTestEnv()
	env.publisher.err = errors.New("broker down")
	env.store.addUser("a", true, false)
	env.store.addUser("b", true, false)
	env.store.seedWallet("a", 1000)

	_, err := env.wallets.TransferFunds(context.Background(), "a", TransferInput{RecipientID: "b", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), env.store.wallet("b").Balance)
}
