package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/chime/internal/model"
	"github.com/lib/pq"
)

// backfillColumns はコレクションごとにパッチ可能なフィールドとカラム名の対応。
var backfillColumns = map[model.Collection]map[string]string{
	model.CollectionUsers: {
		"isAdmin":        "is_admin",
		"isMod":          "is_mod",
		"followerCount":  "follower_count",
		"followingCount": "following_count",
	},
	model.CollectionPosts: {
		"views":        "views",
		"likeCount":    "like_count",
		"dislikeCount": "dislike_count",
		"commentCount": "comment_count",
	},
	model.CollectionComments: {
		"likeCount":    "like_count",
		"dislikeCount": "dislike_count",
		"replyCount":   "reply_count",
	},
}

// PostgresBackfillRepo はPostgreSQLを使用したバックフィルリポジトリ。
type PostgresBackfillRepo struct {
	db Querier
}

// NewPostgresBackfillRepo はPostgresBackfillRepoを生成する。
func NewPostgresBackfillRepo(db Querier) *PostgresBackfillRepo {
	return &PostgresBackfillRepo{db: db}
}

// ListKeys はafterより後ろのドキュメントキーをキー順にlimit件まで返す。
func (r *PostgresBackfillRepo) ListKeys(ctx context.Context, collection model.Collection, after model.DocumentKey, limit int) ([]model.DocumentKey, error) {
	var query string
	var args []any
	switch collection {
	case model.CollectionUsers, model.CollectionPosts:
		query = fmt.Sprintf(`SELECT '', id FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, collection)
		args = []any{after.ID, limit}
	case model.CollectionComments:
		query = `SELECT post_id, id FROM comments WHERE (post_id, id) > ($1, $2) ORDER BY post_id, id LIMIT $3`
		args = []any{after.ParentID, after.ID, limit}
	default:
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", collection, err)
	}
	defer rows.Close()

	keys := make([]model.DocumentKey, 0, limit)
	for rows.Next() {
		var k model.DocumentKey
		if err := rows.Scan(&k.ParentID, &k.ID); err != nil {
			return nil, fmt.Errorf("failed to scan %s key: %w", collection, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s keys: %w", collection, err)
	}
	return keys, nil
}

// ApplyPatch はkeysのドキュメントにパッチを1回のUPDATEで適用し、更新件数を返す。
// OnlyIfMissingのフィールドは既に値を持つドキュメントでは変更しない。
// 全フィールドがOnlyIfMissingの場合、欠損のないドキュメントは対象外となり
// 再実行してもupdated_atは変わらない。
func (r *PostgresBackfillRepo) ApplyPatch(ctx context.Context, patch model.Patch, keys []model.DocumentKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	columns, ok := backfillColumns[patch.Collection]
	if !ok {
		return 0, fmt.Errorf("unknown collection: %s", patch.Collection)
	}

	sets := make([]string, 0, len(patch.Fields)+1)
	args := make([]any, 0, len(patch.Fields)+2)
	missing := make([]string, 0, len(patch.Fields))
	onlyIfMissing := len(patch.Fields) > 0
	for _, f := range patch.Fields {
		col, ok := columns[f.Field]
		if !ok {
			return 0, fmt.Errorf("field %q cannot be patched on %s", f.Field, patch.Collection)
		}
		args = append(args, f.Value)
		if f.OnlyIfMissing {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, $%d)", col, col, len(args)))
			missing = append(missing, col+" IS NULL")
		} else {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
			onlyIfMissing = false
		}
	}
	sets = append(sets, "updated_at = now()")

	var where string
	if patch.Collection == model.CollectionComments {
		parents := make([]string, len(keys))
		ids := make([]string, len(keys))
		for i, k := range keys {
			parents[i], ids[i] = k.ParentID, k.ID
		}
		args = append(args, pq.Array(parents), pq.Array(ids))
		where = fmt.Sprintf("(post_id, id) IN (SELECT * FROM unnest($%d::text[], $%d::text[]))", len(args)-1, len(args))
	} else {
		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k.ID
		}
		args = append(args, pq.Array(ids))
		where = fmt.Sprintf("id = ANY($%d::text[])", len(args))
	}

	if onlyIfMissing {
		where += " AND (" + strings.Join(missing, " OR ") + ")"
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", patch.Collection, strings.Join(sets, ", "), where)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to apply patch %s: %w", patch.Name, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ BackfillRepository = (*PostgresBackfillRepo)(nil)
