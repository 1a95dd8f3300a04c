package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// 再実行対象のSQLSTATE
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

const (
	// initialRetryBackoff はトランザクション再実行の初回待機時間。
	initialRetryBackoff = 10 * time.Millisecond
	// maxRetryBackoff は再実行待機時間の上限。
	maxRetryBackoff = 200 * time.Millisecond
)

// RetryBackoff は失敗回数に基づいて再実行までの待機時間を計算する。
// 初回10ms、2倍ずつ増加、最大200ms。
func RetryBackoff(attempt int) time.Duration {
	delay := initialRetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return delay
}

// PostgresStore はPostgreSQL上のドキュメントストア。
// RunInTxはSERIALIZABLE分離レベルで実行し、直列化失敗・デッドロック時は
// maxAttempts回まで再実行する。
type PostgresStore struct {
	db          *sql.DB
	maxAttempts int
	onRetry     func(attempt int, err error)
	backoff     func(attempt int) time.Duration
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB, maxAttempts int) *PostgresStore {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PostgresStore{db: db, maxAttempts: maxAttempts, backoff: RetryBackoff}
}

// SetRetryHook はトランザクション再実行の直前に呼ばれる関数を設定する。
func (s *PostgresStore) SetRetryHook(fn func(attempt int, err error)) {
	s.onRetry = fn
}

// PingContext はデータベースへの疎通を確認する。
func (s *PostgresStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Counters はトランザクション外で使うCounterRepositoryを返す。
func (s *PostgresStore) Counters() CounterRepository { return NewPostgresCounterRepo(s.db) }

// Markers はトランザクション外で使うMarkerRepositoryを返す。
func (s *PostgresStore) Markers() MarkerRepository { return NewPostgresMarkerRepo(s.db) }

// Users はトランザクション外で使うUserRepositoryを返す。
func (s *PostgresStore) Users() UserRepository { return NewPostgresUserRepo(s.db) }

// RunInTx はfnを1つのトランザクション内で実行する。
// fnが返したエラーはラップせずにそのまま返す。
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt == s.maxAttempts {
			return err
		}
		if s.onRetry != nil {
			s.onRetry(attempt, err)
		}
		if waitErr := sleepContext(ctx, s.backoff(attempt)); waitErr != nil {
			return waitErr
		}
	}
	return err
}

// sleepContext はdの間待機する。ctxが先に終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &postgresTx{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable はトランザクションの再実行で解消しうるエラーかを返す。
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	default:
		return false
	}
}

type postgresTx struct {
	q Querier
}

func (t *postgresTx) Counters() CounterRepository { return NewPostgresCounterRepo(t.q) }
func (t *postgresTx) Markers() MarkerRepository   { return NewPostgresMarkerRepo(t.q) }
func (t *postgresTx) Users() UserRepository       { return NewPostgresUserRepo(t.q) }

// compile-time interface check
var _ Transactor = (*PostgresStore)(nil)
