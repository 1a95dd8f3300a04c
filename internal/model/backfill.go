package model

// Collection はバックフィル対象のコレクションを表す。
type Collection string

const (
	CollectionUsers    Collection = "users"
	CollectionPosts    Collection = "posts"
	CollectionComments Collection = "comments"
)

// DocumentKey はコレクション内のドキュメントを一意に識別するキー。
// commentsのみParentIDに親投稿のIDを持つ。
type DocumentKey struct {
	ParentID string
	ID       string
}

// FieldPatch は1フィールド分の初期化内容。
// OnlyIfMissingがtrueの場合、既に値を持つドキュメントは上書きしない。
type FieldPatch struct {
	Field         string
	Value         any
	OnlyIfMissing bool
}

// Patch はコレクション全体に適用する固定のフィールド初期化パッチ。
// パッチに含まれないフィールドは変更しない（マージ書き込み）。
type Patch struct {
	Name       string
	Collection Collection
	Fields     []FieldPatch
}
