// Package model はドメインモデルを定義する。
package model

import "time"

// ItemKind は集計カウンタを持つドキュメントの種別を表す。
type ItemKind string

const (
	// ItemKindPost は投稿を表す。
	ItemKindPost ItemKind = "post"
	// ItemKindComment は投稿に付いたコメントを表す。
	ItemKindComment ItemKind = "comment"
)

// Label はメッセージ表示用の名称を返す。
func (k ItemKind) Label() string {
	if k == ItemKindComment {
		return "コメント"
	}
	return "投稿"
}

// CounterField は集計カウンタのフィールド名を表す。
type CounterField string

const (
	FieldViews        CounterField = "views"
	FieldLikeCount    CounterField = "likeCount"
	FieldDislikeCount CounterField = "dislikeCount"
	FieldCommentCount CounterField = "commentCount"
	FieldReplyCount   CounterField = "replyCount"
)

// HasCounter は種別がそのカウンタを持つかを返す。
// viewsとcommentCountは投稿のみ、replyCountはコメントのみが持つ。
func (k ItemKind) HasCounter(f CounterField) bool {
	switch f {
	case FieldLikeCount, FieldDislikeCount:
		return true
	case FieldViews, FieldCommentCount:
		return k == ItemKindPost
	case FieldReplyCount:
		return k == ItemKindComment
	default:
		return false
	}
}

// ItemRef は投稿またはコメントへの参照。
// CommentIDが空の場合は投稿そのものを指す。
type ItemRef struct {
	PostID    string
	CommentID string
}

// PostRef は投稿への参照を返す。
func PostRef(postID string) ItemRef {
	return ItemRef{PostID: postID}
}

// CommentRef はコメントへの参照を返す。
func CommentRef(postID, commentID string) ItemRef {
	return ItemRef{PostID: postID, CommentID: commentID}
}

// Kind は参照先の種別を返す。
func (r ItemRef) Kind() ItemKind {
	if r.CommentID != "" {
		return ItemKindComment
	}
	return ItemKindPost
}

// Path はドキュメントパス形式（posts/{id} または posts/{id}/comments/{id}）を返す。
// ログとエラーメッセージで使用する。
func (r ItemRef) Path() string {
	if r.CommentID != "" {
		return "posts/" + r.PostID + "/comments/" + r.CommentID
	}
	return "posts/" + r.PostID
}

// Item は集計カウンタを持つ投稿またはコメント。
// フィールドが存在しない旧ドキュメントのカウンタは0として読み出す。
type Item struct {
	Ref          ItemRef
	Views        int64
	LikeCount    int64
	DislikeCount int64
	CommentCount int64
	ReplyCount   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Counter は指定フィールドの現在値を返す。
func (i *Item) Counter(f CounterField) int64 {
	switch f {
	case FieldViews:
		return i.Views
	case FieldLikeCount:
		return i.LikeCount
	case FieldDislikeCount:
		return i.DislikeCount
	case FieldCommentCount:
		return i.CommentCount
	case FieldReplyCount:
		return i.ReplyCount
	default:
		return 0
	}
}
