// internal/worker/escrow_sweeper.go
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tradebybarter-ledger/internal/domain"
	"tradebybarter-ledger/internal/util"
)

const sweepLockName = "escrow-expiry-sweep"

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = util.NewError(util.ErrConflict, "an escrow sweep is already running")

// Locker hands out named leases. release must be called once the work is done.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// ExpiredEscrowSettler settles one batch of escrows past their deadline.
type ExpiredEscrowSettler interface {
	AutoReleaseExpiredEscrows(ctx context.Context) (domain.SweepResult, error)
}

// EscrowSweeper runs the expiry sweep on a fixed interval. At most one sweep runs
// at a time across everything sharing the Locker.
type EscrowSweeper struct {
	settler  ExpiredEscrowSettler
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewEscrowSweeper creates a sweeper. A nil locker means an in-process mutex.
func NewEscrowSweeper(settler ExpiredEscrowSettler, locker Locker, interval time.Duration, logger *slog.Logger) *EscrowSweeper {
	if locker == nil {
		locker = NewMutexLocker()
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &EscrowSweeper{
		settler:  settler,
		locker:   locker,
		interval: interval,
		lockTTL:  5 * time.Minute,
		logger:   logger.With("component", "escrow_sweeper"),
	}
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (s *EscrowSweeper) Run(ctx context.Context) {
	s.logger.Info("Escrow sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !util.IsError(err, ErrSweepInProgress) && ctx.Err() == nil {
			s.logger.Error("Escrow sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Escrow sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single locked sweep.
func (s *EscrowSweeper) RunOnce(ctx context.Context) (domain.SweepResult, error) {
	release, ok, err := s.locker.Acquire(ctx, sweepLockName, s.lockTTL)
	if err != nil {
		return domain.SweepResult{}, err
	}
	if !ok {
		s.logger.Debug("Skipping sweep, lock held elsewhere")
		return domain.SweepResult{}, ErrSweepInProgress
	}
	defer func() {
		// ctx may already be cancelled on shutdown; the lock must still go.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("Failed to release sweep lock", "error", err)
		}
	}()

	return s.settler.AutoReleaseExpiredEscrows(ctx)
}

// MutexLocker is a Locker for a single process.
type MutexLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{held: map[string]bool{}}
}

// Acquire ignores ttl; the lease lasts until release.
func (l *MutexLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, true, nil
}
