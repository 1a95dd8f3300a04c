package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/chime/internal/engagement"
	"github.com/hitoshi/chime/internal/middleware"
	"github.com/hitoshi/chime/internal/model"
)

// EngagementServiceInterface はエンゲージメントハンドラーが必要とするサービスインターフェース。
// engagement.Serviceが実装する。
type EngagementServiceInterface interface {
	IncrementPostView(ctx context.Context, callerID, postID, anonymousViewerID string) (engagement.ViewOutcome, error)
	IncrementCommentCount(ctx context.Context, postID string) error

	AddLike(ctx context.Context, callerID, postID string) error
	RemoveLike(ctx context.Context, callerID, postID string) error
	AddDislike(ctx context.Context, callerID, postID string) error
	RemoveDislike(ctx context.Context, callerID, postID string) error
	AddLikeToComment(ctx context.Context, callerID, postID, commentID string) error
	RemoveLikeFromComment(ctx context.Context, callerID, postID, commentID string) error
	AddDislikeToComment(ctx context.Context, callerID, postID, commentID string) error
	RemoveDislikeFromComment(ctx context.Context, callerID, postID, commentID string) error

	FollowUser(ctx context.Context, callerID, loggedInUserID, targetUserID string) error
	UnfollowUser(ctx context.Context, callerID, loggedInUserID, targetUserID string) error

	EngagementState(ctx context.Context, callerID, postID, commentID string) (engagement.EngagementState, error)
	IsFollowing(ctx context.Context, callerID, targetUserID string) (bool, error)
	ViewStatus(ctx context.Context, callerID, postID, anonymousViewerID string) (engagement.ViewStatus, error)
}

// OperationRecorder は操作結果のメトリクスを記録するインターフェース。
// metrics.Collectorが実装する。
type OperationRecorder interface {
	RecordOperation(operation, code string, duration time.Duration)
	RecordViewSuppressed()
}

// EngagementHandler はエンゲージメント操作のRPCハンドラー。
type EngagementHandler struct {
	service EngagementServiceInterface
	metrics OperationRecorder
}

// NewEngagementHandler はEngagementHandlerを生成する。
func NewEngagementHandler(service EngagementServiceInterface, metrics OperationRecorder) *EngagementHandler {
	return &EngagementHandler{service: service, metrics: metrics}
}

// --- リクエスト型 ---

type postRequest struct {
	PostID string `json:"postId"`
}

type commentRequest struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
}

type viewRequest struct {
	PostID            string `json:"postId"`
	AnonymousViewerID string `json:"anonymousViewerId,omitempty"`
}

type followRequest struct {
	TargetUserID   string `json:"targetUserId"`
	LoggedInUserID string `json:"loggedInUserId"`
}

type engagementStateRequest struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId,omitempty"`
}

type isFollowingRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// --- レスポンス型 ---

type engagementStateResponse struct {
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
}

type isFollowingResponse struct {
	Following bool `json:"following"`
}

type viewStatusResponse struct {
	Viewed       bool       `json:"viewed"`
	LastViewedAt *time.Time `json:"lastViewedAt"`
}

// rpcFunc はデコード済みの呼び出しを実行し、resultに載せる値を返す。
type rpcFunc func(ctx context.Context, callerID string) (any, error)

// serve はデコード・実行・レスポンス書き込み・メトリクス記録を共通化する。
// reqがnilでない場合、実行前にリクエストボディをreqへデコードする。
func (h *EngagementHandler) serve(w http.ResponseWriter, r *http.Request, operation string, req any, fn rpcFunc) {
	start := time.Now()
	code := ""
	defer func() {
		if h.metrics != nil {
			h.metrics.RecordOperation(operation, code, time.Since(start))
		}
	}()

	if err := decodeData(r, req); err != nil {
		code = model.CodeOf(err)
		handleServiceError(w, r, operation, err)
		return
	}

	result, err := fn(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		code = model.CodeOf(err)
		handleServiceError(w, r, operation, err)
		return
	}
	writeResult(w, result)
}

func ok() (any, error) {
	return successResult{Success: true}, nil
}

func okOrErr(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return ok()
}

// IncrementPostView は投稿の閲覧数を加算する。認証は任意。
// POST /rpc/incrementPostView
func (h *EngagementHandler) IncrementPostView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	h.serve(w, r, "incrementPostView", &req, func(ctx context.Context, callerID string) (any, error) {
		outcome, err := h.service.IncrementPostView(ctx, callerID, req.PostID, req.AnonymousViewerID)
		if err != nil {
			return nil, err
		}
		if outcome == engagement.ViewSuppressed && h.metrics != nil {
			h.metrics.RecordViewSuppressed()
		}
		return ok()
	})
}

// IncrementCommentCount は投稿のコメント数を加算する。認証は不要。
// POST /rpc/incrementCommentCount
func (h *EngagementHandler) IncrementCommentCount(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	h.serve(w, r, "incrementCommentCount", &req, func(ctx context.Context, _ string) (any, error) {
		return okOrErr(h.service.IncrementCommentCount(ctx, req.PostID))
	})
}

// postToggle は投稿単位のトグル操作のハンドラーを生成する。
func (h *EngagementHandler) postToggle(operation string, call func(ctx context.Context, callerID, postID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postRequest
		h.serve(w, r, operation, &req, func(ctx context.Context, callerID string) (any, error) {
			return okOrErr(call(ctx, callerID, req.PostID))
		})
	}
}

// commentToggle はコメント単位のトグル操作のハンドラーを生成する。
func (h *EngagementHandler) commentToggle(operation string, call func(ctx context.Context, callerID, postID, commentID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commentRequest
		h.serve(w, r, operation, &req, func(ctx context.Context, callerID string) (any, error) {
			return okOrErr(call(ctx, callerID, req.PostID, req.CommentID))
		})
	}
}

// followToggle はフォロー・フォロー解除のハンドラーを生成する。
func (h *EngagementHandler) followToggle(operation string, call func(ctx context.Context, callerID, loggedInUserID, targetUserID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req followRequest
		h.serve(w, r, operation, &req, func(ctx context.Context, callerID string) (any, error) {
			return okOrErr(call(ctx, callerID, req.LoggedInUserID, req.TargetUserID))
		})
	}
}

// GetEngagementState は呼び出し元のいいね/よくないねの状態を返す。
// POST /rpc/getEngagementState
func (h *EngagementHandler) GetEngagementState(w http.ResponseWriter, r *http.Request) {
	var req engagementStateRequest
	h.serve(w, r, "getEngagementState", &req, func(ctx context.Context, callerID string) (any, error) {
		state, err := h.service.EngagementState(ctx, callerID, req.PostID, req.CommentID)
		if err != nil {
			return nil, err
		}
		return engagementStateResponse{Liked: state.Liked, Disliked: state.Disliked}, nil
	})
}

// IsFollowing は呼び出し元が対象ユーザーをフォローしているかを返す。
// POST /rpc/isFollowing
func (h *EngagementHandler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	var req isFollowingRequest
	h.serve(w, r, "isFollowing", &req, func(ctx context.Context, callerID string) (any, error) {
		following, err := h.service.IsFollowing(ctx, callerID, req.TargetUserID)
		if err != nil {
			return nil, err
		}
		return isFollowingResponse{Following: following}, nil
	})
}

// HasViewed は閲覧者キーに対する閲覧記録の状態を返す。
// POST /rpc/hasViewed
func (h *EngagementHandler) HasViewed(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	h.serve(w, r, "hasViewed", &req, func(ctx context.Context, callerID string) (any, error) {
		status, err := h.service.ViewStatus(ctx, callerID, req.PostID, req.AnonymousViewerID)
		if err != nil {
			return nil, err
		}
		resp := viewStatusResponse{Viewed: status.Viewed}
		if status.Viewed {
			at := status.LastViewedAt.UTC()
			resp.LastViewedAt = &at
		}
		return resp, nil
	})
}
