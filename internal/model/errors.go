// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は呼び出し元に返す型付きエラーを表す。
// Codeは呼び出し元がユーザー向けメッセージへ対応付けるための種別タグ。
// Causeはサーバー側ログ用の根本原因で、レスポンスには含めない。
type APIError struct {
	Code     string // エラー種別タグ
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, engagement, system
	Action   string // ユーザー向け対処方法
	Cause    error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は根本原因を返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 呼び出し元に公開するエラー種別タグ
const (
	ErrCodeInvalidArgument = "invalid-argument"
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeAlreadyExists   = "already-exists"
	ErrCodeNotFound        = "not-found"
	ErrCodeInternal        = "internal"
	ErrCodeUnknown         = "unknown"
)

// CodeOf はエラーの種別タグを返す。APIError以外はinternalとして扱う。
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrCodeInternal
}

// NewInvalidArgumentError は引数検証エラーを生成する。
func NewInvalidArgumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
// actionには認証が必要な操作の説明（例: "投稿にいいねする"）を渡す。
func NewUnauthenticatedError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  fmt.Sprintf("%sにはサインインが必要です。", action),
		Category: "auth",
		Action:   "サインインしてから再度お試しください。",
	}
}

// NewMarkerExistsError は同一アクターによる重複操作のエラーを生成する。
func NewMarkerExistsError(kind MarkerKind, ref ItemRef) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  fmt.Sprintf("既に%sしています: %s", kind.Label(), ref.Path()),
		Category: "engagement",
		Action:   "現在の状態を再取得してください。",
	}
}

// NewMarkerNotFoundError は取り消し対象の操作が存在しない場合のエラーを生成する。
func NewMarkerNotFoundError(kind MarkerKind, ref ItemRef) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("まだ%sしていません: %s", kind.Label(), ref.Path()),
		Category: "engagement",
		Action:   "現在の状態を再取得してください。",
	}
}

// NewItemNotFoundError は投稿またはコメントが存在しない場合のエラーを生成する。
func NewItemNotFoundError(ref ItemRef) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", ref.Kind().Label(), ref.Path()),
		Category: "engagement",
		Action:   "IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", userID),
		Category: "engagement",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。causeはログ用に保持される。
func NewInternalError(message string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}

// NewUnknownError は分類できない失敗を表すエラーを生成する。causeはログ用に保持される。
func NewUnknownError(message string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeUnknown,
		Message:  message,
		Category: "system",
		Action:   "現在の状態を再取得してから再度お試しください。",
		Cause:    cause,
	}
}
