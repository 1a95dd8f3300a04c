// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/chime/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// callerSlotContextKey はアクセスログへ認証済みユーザーIDを受け渡すスロットのキー。
var callerSlotContextKey = contextKey("caller_slot")

// callerSlot はログミドルウェアが用意し、識別ミドルウェアが書き込む。
// 識別は/rpc配下でのみ行われ、派生したリクエストのコンテキストは上位のミドルウェアから見えない。
type callerSlot struct {
	userID string
}

func withCallerSlot(ctx context.Context) (context.Context, *callerSlot) {
	slot := &callerSlot{}
	return context.WithValue(ctx, callerSlotContextKey, slot), slot
}

// recordCaller はコンテキストにスロットがあれば認証済みユーザーIDを書き込む。
func recordCaller(ctx context.Context, userID string) {
	if slot, ok := ctx.Value(callerSlotContextKey).(*callerSlot); ok {
		slot.userID = userID
	}
}

// TokenVerifier はIDトークンの検証に必要なインターフェース。
// auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// NewIdentityMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがない場合は匿名の呼び出しとしてそのまま通す。
// ヘッダーがあるが検証に失敗した場合は401 unauthenticatedを返す。
func NewIdentityMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeInvalidToken(w, r)
				return
			}

			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				slog.WarnContext(r.Context(), "identity token rejected",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				writeInvalidToken(w, r)
				return
			}

			recordCaller(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

func writeInvalidToken(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, http.StatusUnauthorized, &model.APIError{
		Code:     model.ErrCodeUnauthenticated,
		Message:  "認証トークンが無効です。",
		Category: "auth",
		Action:   "再度サインインしてください。",
	})
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 有効なトークンを持つリクエストでのみ値を返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// CallerID は呼び出し元のユーザーIDを返す。匿名の場合は空文字列。
func CallerID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey).(string)
	return userID
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
