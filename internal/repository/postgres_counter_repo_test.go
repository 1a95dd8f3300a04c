package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/chime/internal/model"
)

func TestPostgresCounterRepo_FindItem_Post(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	// viewsがNULLの旧ドキュメント
	mock.ExpectQuery(`SELECT views, like_count, dislike_count, comment_count, created_at, updated_at FROM posts WHERE id = \$1`).
		WithArgs("post-1").
		WillReturnRows(sqlmock.NewRows([]string{"views", "like_count", "dislike_count", "comment_count", "created_at", "updated_at"}).
			AddRow(nil, int64(3), int64(1), int64(7), now, now))

	item, err := repo.FindItem(context.Background(), model.PostRef("post-1"))
	if err != nil {
		t.Fatalf("FindItem() がエラーを返した: %v", err)
	}
	if item == nil {
		t.Fatal("FindItem() = nil, want item")
	}
	if item.Views != 0 {
		t.Errorf("Views = %d, want 0", item.Views)
	}
	if item.LikeCount != 3 || item.DislikeCount != 1 || item.CommentCount != 7 {
		t.Errorf("counters = (%d, %d, %d), want (3, 1, 7)", item.LikeCount, item.DislikeCount, item.CommentCount)
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_FindItem_Comment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM comments WHERE post_id = \$1 AND id = \$2`).
		WithArgs("post-1", "c-1").
		WillReturnRows(sqlmock.NewRows([]string{"like_count", "dislike_count", "reply_count", "created_at", "updated_at"}).
			AddRow(int64(2), nil, int64(4), now, now))

	item, err := repo.FindItem(context.Background(), model.CommentRef("post-1", "c-1"))
	if err != nil {
		t.Fatalf("FindItem() がエラーを返した: %v", err)
	}
	if item.LikeCount != 2 || item.DislikeCount != 0 || item.ReplyCount != 4 {
		t.Errorf("counters = (%d, %d, %d), want (2, 0, 4)", item.LikeCount, item.DislikeCount, item.ReplyCount)
	}
	if item.Ref != model.CommentRef("post-1", "c-1") {
		t.Errorf("Ref = %+v, want comment ref", item.Ref)
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_FindItem_NotFoundReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)

	mock.ExpectQuery(`FROM posts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"views", "like_count", "dislike_count", "comment_count", "created_at", "updated_at"}))

	item, err := repo.FindItem(context.Background(), model.PostRef("missing"))
	if err != nil {
		t.Fatalf("FindItem() がエラーを返した: %v", err)
	}
	if item != nil {
		t.Errorf("FindItem() = %+v, want nil", item)
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_Increment_ClampsAtZero(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)

	mock.ExpectExec(`UPDATE comments SET dislike_count = GREATEST\(COALESCE\(dislike_count, 0\) \+ \$3, 0\)`).
		WithArgs("post-1", "c-1", int64(-1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Increment(context.Background(), model.CommentRef("post-1", "c-1"), model.FieldDislikeCount, -1)
	if err != nil {
		t.Fatalf("Increment() がエラーを返した: %v", err)
	}
	if !ok {
		t.Error("Increment() = false, want true")
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_Increment_MissingDocumentReturnsFalse(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)

	mock.ExpectExec(`UPDATE posts SET comment_count`).
		WithArgs("missing", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Increment(context.Background(), model.PostRef("missing"), model.FieldCommentCount, 1)
	if err != nil {
		t.Fatalf("Increment() がエラーを返した: %v", err)
	}
	if ok {
		t.Error("Increment() = true, want false")
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_Increment_RejectsUndefinedCounter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)

	// コメントはviewsを持たない
	_, err := repo.Increment(context.Background(), model.CommentRef("post-1", "c-1"), model.FieldViews, 1)
	if err == nil {
		t.Fatal("未定義カウンタでエラーが返されなかった")
	}
	_, err = repo.Increment(context.Background(), model.PostRef("post-1"), model.CounterField("score; DROP TABLE posts"), 1)
	if err == nil {
		t.Fatal("不正なフィールド名でエラーが返されなかった")
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_InitializeOrIncrement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)

	mock.ExpectExec(`INSERT INTO posts \(id, views\) VALUES .* ON CONFLICT \(id\) DO UPDATE SET views = GREATEST\(COALESCE\(posts.views, 0\) \+ \$2, 0\)`).
		WithArgs("post-1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.InitializeOrIncrement(context.Background(), model.PostRef("post-1"), model.FieldViews, 1); err != nil {
		t.Fatalf("InitializeOrIncrement() がエラーを返した: %v", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresCounterRepo_InitializeOrIncrement_WrapsError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCounterRepo(db)

	dbErr := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO posts`).WillReturnError(dbErr)

	err := repo.InitializeOrIncrement(context.Background(), model.PostRef("post-1"), model.FieldViews, 1)
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped %v", err, dbErr)
	}
	assertExpectations(t, mock)
}
