// internal/service/tx.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tradebybarter-ledger/internal/events"
	"tradebybarter-ledger/internal/repository"
	"tradebybarter-ledger/internal/util"
	"tradebybarter-ledger/pkg/db"
)

// txRunner owns the injected transaction lifecycle shared by the services.
type txRunner struct {
	dbBeginner db.DBTxBeginner
	beginTx    db.BeginTxFunc
	commitTx   db.CommitTxFunc
	rollbackTx db.RollbackTxFunc
}

// inTx runs fn inside one database transaction and commits only if fn succeeds.
// Domain errors pass through unchanged so callers can still match them.
func (r txRunner) inTx(ctx context.Context, op string, fn func(q repository.DBExecutor) error) error {
	txController, err := r.beginTx(ctx, r.dbBeginner)
	if err != nil {
		return util.StorageError(op+": begin transaction", err)
	}
	defer r.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return fmt.Errorf("%s: transaction controller does not implement DBExecutor", op)
	}

	if err := fn(txExecutor); err != nil {
		return wrapOp(op, err)
	}

	if err := r.commitTx(txController); err != nil {
		return util.StorageError(op+": commit transaction", err)
	}
	return nil
}

func wrapOp(op string, err error) error {
	if err == nil || util.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// lockWallets makes sure every user has a wallet and row-locks them in ascending
// user id order, so two operations touching the same pair cannot deadlock.
func lockWallets(ctx context.Context, q repository.DBExecutor, wallets repository.WalletRepository, userIDs ...string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if err := wallets.CreateWalletIfNotExists(ctx, q, id); err != nil {
			return err
		}
		if _, err := wallets.GetWalletByUserIDForUpdate(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

// publish sends an event after commit. Failures are logged and never undo the ledger change.
func publish(ctx context.Context, publisher events.Publisher, logger *slog.Logger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish ledger event", "event", event.Type, "aggregate_id", event.AggregateID, "error", err)
	}
}

func utcNow() time.Time { return time.Now().UTC() }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
