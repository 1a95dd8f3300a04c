package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/chime/internal/model"
)

var userColumns = []string{"id", "username", "followers", "follower_count", "following", "following_count", "created_at", "updated_at"}

func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM users WHERE id = \$1$`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "alice", "{u2,u3}", int64(2), "{}", nil, now, now))

	user, err := repo.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindByID() がエラーを返した: %v", err)
	}
	if user == nil {
		t.Fatal("FindByID() = nil, want user")
	}
	if len(user.Followers) != 2 || user.Followers[0] != "u2" || user.Followers[1] != "u3" {
		t.Errorf("Followers = %v, want [u2 u3]", user.Followers)
	}
	if user.FollowerCount != 2 {
		t.Errorf("FollowerCount = %d, want 2", user.FollowerCount)
	}
	if len(user.Following) != 0 || user.FollowingCount != 0 {
		t.Errorf("Following = %v (%d), want empty", user.Following, user.FollowingCount)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_FindByIDForUpdate_LocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs("u9").
		WillReturnRows(sqlmock.NewRows(userColumns))

	user, err := repo.FindByIDForUpdate(context.Background(), "u9")
	if err != nil {
		t.Fatalf("FindByIDForUpdate() がエラーを返した: %v", err)
	}
	if user != nil {
		t.Errorf("FindByIDForUpdate() = %+v, want nil", user)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_UpdateFollowEdges(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`UPDATE users SET followers = \$2, follower_count = \$3, following = \$4, following_count = \$5`).
		WithArgs("u1", sqlmock.AnyArg(), int64(1), sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &model.User{ID: "u1", Followers: []string{"u2"}, FollowerCount: 1}
	if err := repo.UpdateFollowEdges(context.Background(), user); err != nil {
		t.Fatalf("UpdateFollowEdges() がエラーを返した: %v", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_UpdateFollowEdges_MissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateFollowEdges(context.Background(), &model.User{ID: "ghost"})
	if err == nil {
		t.Fatal("存在しないユーザーの更新でエラーが返されなかった")
	}
	assertExpectations(t, mock)
}
