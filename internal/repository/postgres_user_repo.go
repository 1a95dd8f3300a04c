package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chime/internal/model"
	"github.com/lib/pq"
)

const selectUserColumns = `SELECT id, username, followers, follower_count, following, following_count, created_at, updated_at FROM users`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db Querier
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db Querier) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, selectUserColumns+` WHERE id = $1`, id)
}

// FindByIDForUpdate は指定IDのユーザーを行ロック付きで取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, selectUserColumns+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresUserRepo) find(ctx context.Context, query, id string) (*model.User, error) {
	user := &model.User{}
	var followerCount, followingCount sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username,
		pq.Array(&user.Followers), &followerCount,
		pq.Array(&user.Following), &followingCount,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	user.FollowerCount = followerCount.Int64
	user.FollowingCount = followingCount.Int64
	return user, nil
}

// UpdateFollowEdges はfollowers/followingとそれぞれのカウントを書き込む。
func (r *PostgresUserRepo) UpdateFollowEdges(ctx context.Context, user *model.User) error {
	followers := user.Followers
	if followers == nil {
		followers = []string{}
	}
	following := user.Following
	if following == nil {
		following = []string{}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET followers = $2, follower_count = $3, following = $4, following_count = $5, updated_at = now()
		 WHERE id = $1`,
		user.ID, pq.Array(followers), user.FollowerCount, pq.Array(following), user.FollowingCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update follow edges: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
