package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chime/internal/middleware"
	"github.com/hitoshi/chime/internal/model"
)

// maxRequestBytes はRPCリクエストボディの最大サイズ。
const maxRequestBytes = 64 << 10

// rpcRequest はcallable形式のリクエストエンベロープ。
type rpcRequest struct {
	Data json.RawMessage `json:"data"`
}

// rpcResponse は成功時のレスポンスエンベロープ。
type rpcResponse struct {
	Result any `json:"result"`
}

// successResult は更新系操作の成功レスポンス。
type successResult struct {
	Success bool `json:"success"`
}

// decodeData はリクエストボディの{"data": {...}}をdstにデコードする。
// 未知のフィールドや型の不一致はinvalid-argumentとする。
func decodeData(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return model.NewInvalidArgumentError("リクエストボディを読み取れません")
	}
	if len(body) > maxRequestBytes {
		return model.NewInvalidArgumentError("リクエストボディが大きすぎます")
	}

	var env rpcRequest
	if err := strictUnmarshal(body, &env); err != nil {
		return model.NewInvalidArgumentError(describeDecodeError(err))
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return model.NewInvalidArgumentError("dataは必須です")
	}
	if err := strictUnmarshal(env.Data, dst); err != nil {
		return model.NewInvalidArgumentError(describeDecodeError(err))
	}
	return nil
}

func strictUnmarshal(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%sの型が不正です", typeErr.Field)
	}
	if errors.Is(err, io.EOF) {
		return "リクエストボディが空です"
	}
	return "リクエストの形式が不正です"
}

// writeResult は成功レスポンスを書き込む。
func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rpcResponse{Result: result})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// 根本原因はログにのみ記録し、レスポンスには含めない。
func handleServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError("内部エラーが発生しました。", err)
	}

	statusCode := mapAPIErrorToHTTPStatus(apiErr)
	if statusCode >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("operation", operation),
			slog.String("code", apiErr.Code),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		}
		if apiErr.Cause != nil {
			attrs = append(attrs, slog.String("error", apiErr.Cause.Error()))
		}
		slog.ErrorContext(r.Context(), "operation failed", attrs...)
	}

	middleware.WriteErrorResponse(w, r, statusCode, apiErr)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
