package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chime/internal/model"
)

// counterColumns はカウンタフィールドとカラム名の対応。
// SQLに埋め込むカラム名はこの表にあるものに限る。
var counterColumns = map[model.CounterField]string{
	model.FieldViews:        "views",
	model.FieldLikeCount:    "like_count",
	model.FieldDislikeCount: "dislike_count",
	model.FieldCommentCount: "comment_count",
	model.FieldReplyCount:   "reply_count",
}

// PostgresCounterRepo はPostgreSQLを使用した集計カウンタリポジトリ。
type PostgresCounterRepo struct {
	db Querier
}

// NewPostgresCounterRepo はPostgresCounterRepoを生成する。
func NewPostgresCounterRepo(db Querier) *PostgresCounterRepo {
	return &PostgresCounterRepo{db: db}
}

// FindItem は投稿またはコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCounterRepo) FindItem(ctx context.Context, ref model.ItemRef) (*model.Item, error) {
	item := &model.Item{Ref: ref}
	var a, b, c sql.NullInt64

	var err error
	if ref.Kind() == model.ItemKindComment {
		err = r.db.QueryRowContext(ctx,
			`SELECT like_count, dislike_count, reply_count, created_at, updated_at
			 FROM comments WHERE post_id = $1 AND id = $2`,
			ref.PostID, ref.CommentID,
		).Scan(&a, &b, &c, &item.CreatedAt, &item.UpdatedAt)
		item.LikeCount, item.DislikeCount, item.ReplyCount = a.Int64, b.Int64, c.Int64
	} else {
		var d sql.NullInt64
		err = r.db.QueryRowContext(ctx,
			`SELECT views, like_count, dislike_count, comment_count, created_at, updated_at
			 FROM posts WHERE id = $1`,
			ref.PostID,
		).Scan(&a, &b, &c, &d, &item.CreatedAt, &item.UpdatedAt)
		item.Views, item.LikeCount, item.DislikeCount, item.CommentCount = a.Int64, b.Int64, c.Int64, d.Int64
	}

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", ref.Path(), err)
	}
	return item, nil
}

// Increment はカウンタにdeltaを加算する。ドキュメントが存在しない場合はfalseを返す。
func (r *PostgresCounterRepo) Increment(ctx context.Context, ref model.ItemRef, field model.CounterField, delta int64) (bool, error) {
	col, err := counterColumn(ref, field)
	if err != nil {
		return false, err
	}

	var result sql.Result
	if ref.Kind() == model.ItemKindComment {
		result, err = r.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE comments SET %[1]s = GREATEST(COALESCE(%[1]s, 0) + $3, 0), updated_at = now()
			 WHERE post_id = $1 AND id = $2`, col),
			ref.PostID, ref.CommentID, delta,
		)
	} else {
		result, err = r.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE posts SET %[1]s = GREATEST(COALESCE(%[1]s, 0) + $2, 0), updated_at = now()
			 WHERE id = $1`, col),
			ref.PostID, delta,
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to increment %s on %s: %w", field, ref.Path(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// InitializeOrIncrement はドキュメントが存在しなければfield=deltaで作成し、存在すれば加算する。
func (r *PostgresCounterRepo) InitializeOrIncrement(ctx context.Context, ref model.ItemRef, field model.CounterField, delta int64) error {
	col, err := counterColumn(ref, field)
	if err != nil {
		return err
	}

	if ref.Kind() == model.ItemKindComment {
		_, err = r.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO comments (post_id, id, %[1]s) VALUES ($1, $2, GREATEST($3::bigint, 0))
			 ON CONFLICT (post_id, id) DO UPDATE
			 SET %[1]s = GREATEST(COALESCE(comments.%[1]s, 0) + $3, 0), updated_at = now()`, col),
			ref.PostID, ref.CommentID, delta,
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO posts (id, %[1]s) VALUES ($1, GREATEST($2::bigint, 0))
			 ON CONFLICT (id) DO UPDATE
			 SET %[1]s = GREATEST(COALESCE(posts.%[1]s, 0) + $2, 0), updated_at = now()`, col),
			ref.PostID, delta,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize or increment %s on %s: %w", field, ref.Path(), err)
	}
	return nil
}

func counterColumn(ref model.ItemRef, field model.CounterField) (string, error) {
	col, ok := counterColumns[field]
	if !ok || !ref.Kind().HasCounter(field) {
		return "", fmt.Errorf("counter %q is not defined for %s", field, ref.Kind())
	}
	return col, nil
}

// compile-time interface check
var _ CounterRepository = (*PostgresCounterRepo)(nil)
