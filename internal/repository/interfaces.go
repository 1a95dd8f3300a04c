// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/chime/internal/model"
)

// Querier は*sql.DBと*sql.Txの共通部分。
// 各リポジトリはトランザクション内外のどちらでも同じクエリを発行できる。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CounterRepository は投稿・コメントの集計カウンタの永続化インターフェース。
type CounterRepository interface {
	// FindItem は投稿またはコメントを取得する。見つからない場合はnilを返す。
	// 値を持たないカウンタは0として読み出す。
	FindItem(ctx context.Context, ref model.ItemRef) (*model.Item, error)

	// Increment はカウンタにdeltaを加算する。フィールドが未作成の場合はdeltaで作成する。
	// 負の加算結果は0に丸める。ドキュメントが存在しない場合はfalseを返す。
	Increment(ctx context.Context, ref model.ItemRef, field model.CounterField, delta int64) (bool, error)

	// InitializeOrIncrement はドキュメントが存在しなければfield=deltaで作成し、
	// 存在すればIncrementと同じ加算を行う（マージ書き込み）。
	InitializeOrIncrement(ctx context.Context, ref model.ItemRef, field model.CounterField, delta int64) error
}

// MarkerRepository はエンゲージメントマーカーの永続化インターフェース。
type MarkerRepository interface {
	// Find はマーカーを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (*model.Marker, error)

	// Exists はマーカーが存在するかを返す。
	Exists(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (bool, error)

	// Create はマーカーを条件付きで作成する。既に存在する場合は何も書き込まずfalseを返す。
	Create(ctx context.Context, marker *model.Marker) (bool, error)

	// Upsert はマーカーを作成し、既に存在する場合は時刻のみ更新する。
	Upsert(ctx context.Context, marker *model.Marker) error

	// Delete はマーカーを削除する。存在しなかった場合はfalseを返す。
	Delete(ctx context.Context, ref model.ItemRef, kind model.MarkerKind, actorID string) (bool, error)
}

// UserRepository はユーザーのフォロー関係の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDForUpdate はFindByIDと同じだが、トランザクション終了まで行をロックする。
	FindByIDForUpdate(ctx context.Context, id string) (*model.User, error)

	// UpdateFollowEdges はfollowers/following とそれぞれのカウントを書き込む。
	UpdateFollowEdges(ctx context.Context, user *model.User) error
}

// BackfillRepository はコレクション全体へのフィールド初期化パッチを扱う。
type BackfillRepository interface {
	// ListKeys はafterより後ろのドキュメントキーをキー順にlimit件まで返す。
	// afterがゼロ値の場合は先頭から返す。
	ListKeys(ctx context.Context, collection model.Collection, after model.DocumentKey, limit int) ([]model.DocumentKey, error)

	// ApplyPatch はkeysのドキュメントにパッチを1回の書き込みで適用し、更新件数を返す。
	ApplyPatch(ctx context.Context, patch model.Patch, keys []model.DocumentKey) (int64, error)
}

// Tx はトランザクションに束縛されたリポジトリ群。
type Tx interface {
	Counters() CounterRepository
	Markers() MarkerRepository
	Users() UserRepository
}

// Transactor はトランザクションの実行を提供する。
// Tx自体はトランザクション外の単発読み取りに使う。
type Transactor interface {
	Tx

	// RunInTx はfnを1つのトランザクション内で実行する。
	// 直列化失敗時はfn全体を再実行するため、fnは副作用を持ってはならない。
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
