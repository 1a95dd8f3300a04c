package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chime/internal/model"
)

// PostgresMarkerRepo はPostgreSQLを使用したエンゲージメントマーカーリポジトリ。
// 投稿レベルのマーカーはcomment_id = ''で保持する。
type PostgresMarkerRepo struct {
	db Querier
}

// NewPostgresMarkerRepo はPostgresMarkerRepoを生成する。
func NewPostgresMarkerRepo(db Querier) *PostgresMarkerRepo {
	return &PostgresMarkerRepo{db: db}
}

// Find はマーカーを取得する。見つからない場合はnilを返す。
func (r *PostgresMarkerRepo) Find(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (*model.Marker, error) {
	m := &model.Marker{Item: ref, Kind: kind, ActorID: actorID}
	err := r.db.QueryRowContext(ctx,
		`SELECT marked_at FROM engagement_markers
		 WHERE post_id = $1 AND comment_id = $2 AND kind = $3 AND actor_id = $4`,
		ref.PostID, ref.CommentID, string(kind), actorID,
	).Scan(&m.MarkedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s marker on %s: %w", kind, ref.Path(), err)
	}
	return m, nil
}

// Exists はマーカーが存在するかを返す。
func (r *PostgresMarkerRepo) Exists(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM engagement_markers
			WHERE post_id = $1 AND comment_id = $2 AND kind = $3 AND actor_id = $4
		)`,
		ref.PostID, ref.CommentID, string(kind), actorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check %s marker on %s: %w", kind, ref.Path(), err)
	}
	return exists, nil
}

// Create はマーカーを条件付きで作成する。既に存在する場合はfalseを返す。
func (r *PostgresMarkerRepo) Create(ctx context.Context, marker *model.Marker) (bool, error) {
	if !marker.Kind.Valid() {
		return false, fmt.Errorf("unknown marker kind: %q", marker.Kind)
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO engagement_markers (post_id, comment_id, kind, actor_id, marked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (post_id, comment_id, kind, actor_id) DO NOTHING`,
		marker.Item.PostID, marker.Item.CommentID, string(marker.Kind), marker.ActorID, marker.MarkedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create %s marker on %s: %w", marker.Kind, marker.Item.Path(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Upsert はマーカーを作成し、既に存在する場合は時刻のみ更新する。
func (r *PostgresMarkerRepo) Upsert(ctx context.Context, marker *model.Marker) error {
	if !marker.Kind.Valid() {
		return fmt.Errorf("unknown marker kind: %q", marker.Kind)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO engagement_markers (post_id, comment_id, kind, actor_id, marked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (post_id, comment_id, kind, actor_id)
		 DO UPDATE SET marked_at = EXCLUDED.marked_at`,
		marker.Item.PostID, marker.Item.CommentID, string(marker.Kind), marker.ActorID, marker.MarkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s marker on %s: %w", marker.Kind, marker.Item.Path(), err)
	}
	return nil
}

// Delete はマーカーを削除する。存在しなかった場合はfalseを返す。
func (r *PostgresMarkerRepo) Delete(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM engagement_markers
		 WHERE post_id = $1 AND comment_id = $2 AND kind = $3 AND actor_id = $4`,
		ref.PostID, ref.CommentID, string(kind), actorID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s marker on %s: %w", kind, ref.Path(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ MarkerRepository = (*PostgresMarkerRepo)(nil)
