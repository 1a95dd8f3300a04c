package engagement

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/chime/internal/model"
)

// maxIDBytes はドキュメントIDの最大バイト数。
const maxIDBytes = 1500

// ValidateID はドキュメントIDとして使える文字列かを検証する。
// 空文字列・空白のみ・'/'を含むもの・長すぎるものはinvalid-argumentとする。
func ValidateID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return model.NewInvalidArgumentError(fmt.Sprintf("%sは必須です", field))
	}
	if strings.Contains(value, "/") {
		return model.NewInvalidArgumentError(fmt.Sprintf("%sに'/'は使用できません", field))
	}
	// NUL文字はPostgresのtext型に保存できない
	if strings.ContainsRune(value, 0) || !utf8.ValidString(value) {
		return model.NewInvalidArgumentError(fmt.Sprintf("%sに使用できない文字が含まれています", field))
	}
	if len(value) > maxIDBytes {
		return model.NewInvalidArgumentError(fmt.Sprintf("%sが長すぎます（最大%dバイト）", field, maxIDBytes))
	}
	return nil
}

// validateItemRef は投稿またはコメントへの参照を検証する。
func validateItemRef(ref model.ItemRef, isComment bool) error {
	if err := ValidateID("postId", ref.PostID); err != nil {
		return err
	}
	if isComment {
		if err := ValidateID("commentId", ref.CommentID); err != nil {
			return err
		}
	}
	return nil
}

// requireCaller は認証済みの呼び出し元であることを検証する。
func requireCaller(callerID, action string) error {
	if callerID == "" {
		return model.NewUnauthenticatedError(action)
	}
	return nil
}

// ResolveViewerKey は閲覧記録のキーを決定する。
// 認証済みならユーザーID、そうでなければ前後の空白を除いた匿名閲覧者ID、
// どちらもなければ空文字列（重複排除なし）を返す。
func ResolveViewerKey(callerID, anonymousViewerID string) string {
	if callerID != "" {
		return callerID
	}
	return strings.TrimSpace(anonymousViewerID)
}
