// Package cleanup は孤立したエンゲージメントマーカーの削除ジョブを提供する。
// 投稿やコメントの削除時にマーカーが残った場合、そのアクターは二度と
// 同じ操作ができなくなるため、所有ドキュメントのないマーカーを定期的に削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBatchSize は1回のDELETEで削除するマーカーの最大件数。
const DefaultBatchSize = 1000

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder は削除件数を記録するインターフェース。
type Recorder interface {
	RecordOrphanedMarkersDeleted(count int64)
}

// deleteOrphansQuery は所有する投稿（comment_idが空の場合）またはコメントが
// 存在しないマーカーを最大$1件削除する。
const deleteOrphansQuery = `DELETE FROM engagement_markers
WHERE ctid IN (
	SELECT m.ctid FROM engagement_markers m
	WHERE (m.comment_id = '' AND NOT EXISTS (
			SELECT 1 FROM posts p WHERE p.id = m.post_id))
	   OR (m.comment_id <> '' AND NOT EXISTS (
			SELECT 1 FROM comments c WHERE c.post_id = m.post_id AND c.id = m.comment_id))
	LIMIT $1
)`

// CleanupJob は孤立マーカーの削除ジョブ。
// 冪等な削除処理で、途中で失敗しても再実行すれば続きから削除される。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	recorder  Recorder
	BatchSize int
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderはnilでもよい。
func NewCleanupJob(db Executor, logger *slog.Logger, recorder Recorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:        db,
		logger:    logger,
		recorder:  recorder,
		BatchSize: DefaultBatchSize,
	}
}

// Run は孤立マーカーを削除件数がBatchSize未満になるまで繰り返し削除し、合計件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	batchSize := j.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := j.deleteBatch(ctx, batchSize)
		if err != nil {
			j.logger.Error("孤立マーカーの削除に失敗しました",
				slog.String("error", err.Error()),
				slog.Int64("deleted_count", total),
			)
			return total, err
		}
		total += deleted
		if j.recorder != nil && deleted > 0 {
			j.recorder.RecordOrphanedMarkersDeleted(deleted)
		}
		if deleted < int64(batchSize) {
			break
		}
	}

	j.logger.Info("孤立マーカーの削除が完了しました",
		slog.Int64("deleted_count", total),
		slog.Int("batch_size", batchSize),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return total, nil
}

func (j *CleanupJob) deleteBatch(ctx context.Context, batchSize int) (int64, error) {
	result, err := j.db.ExecContext(ctx, deleteOrphansQuery, batchSize)
	if err != nil {
		return 0, fmt.Errorf("孤立マーカーの削除に失敗: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}
