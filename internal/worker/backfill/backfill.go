// Package backfill は既存ドキュメントへの新規フィールド初期化ジョブを提供する。
//
// 各パッチはコレクション全体をキー順にページングして走査し、ページ単位で
// 1回の書き込みとしてコミットする。ドキュメント間のトランザクションは持たないため、
// 途中で失敗した場合は再実行すればよい（パッチは冪等）。
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/chime/internal/model"
	"github.com/hitoshi/chime/internal/repository"
)

// MaxBatchSize は1ページでまとめて書き込むドキュメント数の上限。
const MaxBatchSize = 500

// catalog は実行可能なパッチの一覧。
var catalog = map[string]model.Patch{
	"user-roles": {
		Name:       "user-roles",
		Collection: model.CollectionUsers,
		Fields: []model.FieldPatch{
			{Field: "isAdmin", Value: false},
			{Field: "isMod", Value: false},
		},
	},
	"user-follow-counters": {
		Name:       "user-follow-counters",
		Collection: model.CollectionUsers,
		Fields: []model.FieldPatch{
			{Field: "followerCount", Value: 0, OnlyIfMissing: true},
			{Field: "followingCount", Value: 0, OnlyIfMissing: true},
		},
	},
	"post-counters": {
		Name:       "post-counters",
		Collection: model.CollectionPosts,
		Fields: []model.FieldPatch{
			{Field: "views", Value: 0, OnlyIfMissing: true},
			{Field: "likeCount", Value: 0, OnlyIfMissing: true},
			{Field: "dislikeCount", Value: 0, OnlyIfMissing: true},
			{Field: "commentCount", Value: 0, OnlyIfMissing: true},
		},
	},
	"comment-counters": {
		Name:       "comment-counters",
		Collection: model.CollectionComments,
		Fields: []model.FieldPatch{
			{Field: "likeCount", Value: 0, OnlyIfMissing: true},
			{Field: "dislikeCount", Value: 0, OnlyIfMissing: true},
			{Field: "replyCount", Value: 0, OnlyIfMissing: true},
		},
	},
}

// Lookup は名前からパッチを取得する。
func Lookup(name string) (model.Patch, bool) {
	p, ok := catalog[name]
	return p, ok
}

// Names は登録済みパッチ名をソート済みで返す。
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recorder はバックフィル件数を記録するインターフェース。
type Recorder interface {
	RecordBackfilled(patch string, count int64)
}

// Result はバックフィル1回分の実行結果。
type Result struct {
	Pages   int
	Scanned int
	Updated int64
}

// Job はパッチをコレクション全体に適用するジョブ。
type Job struct {
	repo      repository.BackfillRepository
	logger    *slog.Logger
	recorder  Recorder
	batchSize int
}

// NewJob は新しいJobを生成する。
// batchSizeは1からMaxBatchSizeの範囲に丸められる。recorderはnilでもよい。
func NewJob(repo repository.BackfillRepository, logger *slog.Logger, recorder Recorder, batchSize int) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Job{
		repo:      repo,
		logger:    logger,
		recorder:  recorder,
		batchSize: batchSize,
	}
}

// Run はpatchをコレクションの全ドキュメントに適用する。
// ページの書き込みに失敗した時点で中断し、それまでの結果とエラーを返す。
func (j *Job) Run(ctx context.Context, patch model.Patch) (Result, error) {
	start := time.Now()
	var res Result
	var after model.DocumentKey

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		keys, err := j.repo.ListKeys(ctx, patch.Collection, after, j.batchSize)
		if err != nil {
			return res, fmt.Errorf("page %d: %w", res.Pages+1, err)
		}
		if len(keys) == 0 {
			break
		}

		updated, err := j.repo.ApplyPatch(ctx, patch, keys)
		if err != nil {
			j.logger.Error("バックフィルのページ書き込みに失敗しました",
				slog.String("patch", patch.Name),
				slog.Int("page", res.Pages+1),
				slog.String("error", err.Error()),
			)
			return res, fmt.Errorf("page %d: %w", res.Pages+1, err)
		}

		res.Pages++
		res.Scanned += len(keys)
		res.Updated += updated
		if j.recorder != nil {
			j.recorder.RecordBackfilled(patch.Name, updated)
		}

		j.logger.Info("バックフィルのページをコミットしました",
			slog.String("patch", patch.Name),
			slog.Int("page", res.Pages),
			slog.Int("documents", len(keys)),
			slog.Int("scanned_total", res.Scanned),
		)

		if len(keys) < j.batchSize {
			break
		}
		after = keys[len(keys)-1]
	}

	j.logger.Info("バックフィルが完了しました",
		slog.String("patch", patch.Name),
		slog.String("collection", string(patch.Collection)),
		slog.Int("pages", res.Pages),
		slog.Int("scanned", res.Scanned),
		slog.Int64("updated", res.Updated),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}
