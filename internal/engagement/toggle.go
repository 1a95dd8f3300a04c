package engagement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chime/internal/model"
	"github.com/hitoshi/chime/internal/repository"
)

// EngagementState は呼び出し元ユーザーの投稿・コメントに対する評価状態。
type EngagementState struct {
	Liked    bool
	Disliked bool
}

// AddLike は投稿にいいねする。
func (s *Service) AddLike(ctx context.Context, callerID, postID string) error {
	return s.addMarker(ctx, callerID, model.PostRef(postID), false, model.MarkerLike)
}

// RemoveLike は投稿のいいねを取り消す。
func (s *Service) RemoveLike(ctx context.Context, callerID, postID string) error {
	return s.removeMarker(ctx, callerID, model.PostRef(postID), false, model.MarkerLike)
}

// AddDislike は投稿によくないねする。
func (s *Service) AddDislike(ctx context.Context, callerID, postID string) error {
	return s.addMarker(ctx, callerID, model.PostRef(postID), false, model.MarkerDislike)
}

// RemoveDislike は投稿のよくないねを取り消す。
func (s *Service) RemoveDislike(ctx context.Context, callerID, postID string) error {
	return s.removeMarker(ctx, callerID, model.PostRef(postID), false, model.MarkerDislike)
}

// AddLikeToComment はコメントにいいねする。
func (s *Service) AddLikeToComment(ctx context.Context, callerID, postID, commentID string) error {
	return s.addMarker(ctx, callerID, model.CommentRef(postID, commentID), true, model.MarkerLike)
}

// RemoveLikeFromComment はコメントのいいねを取り消す。
func (s *Service) RemoveLikeFromComment(ctx context.Context, callerID, postID, commentID string) error {
	return s.removeMarker(ctx, callerID, model.CommentRef(postID, commentID), true, model.MarkerLike)
}

// AddDislikeToComment はコメントによくないねする。
func (s *Service) AddDislikeToComment(ctx context.Context, callerID, postID, commentID string) error {
	return s.addMarker(ctx, callerID, model.CommentRef(postID, commentID), true, model.MarkerDislike)
}

// RemoveDislikeFromComment はコメントのよくないねを取り消す。
func (s *Service) RemoveDislikeFromComment(ctx context.Context, callerID, postID, commentID string) error {
	return s.removeMarker(ctx, callerID, model.CommentRef(postID, commentID), true, model.MarkerDislike)
}

// addMarker はマーカーの条件付き作成とカウンタの+1を1つのトランザクションで行う。
// マーカーの条件付き作成が線形化点となり、同一アクターの同時リクエストは1回しか加算されない。
func (s *Service) addMarker(ctx context.Context, callerID string, ref model.ItemRef, isComment bool, kind model.MarkerKind) error {
	if err := validateToggle(callerID, ref, isComment, kind); err != nil {
		return err
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		item, err := tx.Counters().FindItem(ctx, ref)
		if err != nil {
			return err
		}
		if item == nil {
			return model.NewItemNotFoundError(ref)
		}

		created, err := tx.Markers().Create(ctx, &model.Marker{
			Item:     ref,
			Kind:     kind,
			ActorID:  callerID,
			MarkedAt: s.now(),
		})
		if err != nil {
			return err
		}
		if !created {
			return model.NewMarkerExistsError(kind, ref)
		}

		_, err = tx.Counters().Increment(ctx, ref, kind.CounterField(), 1)
		return err
	})
	return classify(err, func(cause error) *model.APIError {
		return model.NewUnknownError(fmt.Sprintf("%sに失敗しました。", kind.Label()), cause)
	})
}

// removeMarker はマーカーの削除とカウンタの-1を1つのトランザクションで行う。
// カウンタは0未満にならない。
func (s *Service) removeMarker(ctx context.Context, callerID string, ref model.ItemRef, isComment bool, kind model.MarkerKind) error {
	if err := validateToggle(callerID, ref, isComment, kind); err != nil {
		return err
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		item, err := tx.Counters().FindItem(ctx, ref)
		if err != nil {
			return err
		}
		if item == nil {
			return model.NewItemNotFoundError(ref)
		}

		deleted, err := tx.Markers().Delete(ctx, ref, kind, callerID)
		if err != nil {
			return err
		}
		if !deleted {
			return model.NewMarkerNotFoundError(kind, ref)
		}

		field := kind.CounterField()
		if item.Counter(field) <= 0 {
			// マーカーはあるのにカウンタが0: 台帳とカウンタの不整合
			s.logger.WarnContext(ctx, "counter already zero, decrement clamped",
				slog.String("item", ref.Path()),
				slog.String("field", string(field)),
			)
		}
		_, err = tx.Counters().Increment(ctx, ref, field, -1)
		return err
	})
	return classify(err, func(cause error) *model.APIError {
		return model.NewUnknownError(fmt.Sprintf("%sの取り消しに失敗しました。", kind.Label()), cause)
	})
}

func validateToggle(callerID string, ref model.ItemRef, isComment bool, kind model.MarkerKind) error {
	target := model.ItemKindPost
	if isComment {
		target = model.ItemKindComment
	}
	if err := requireCaller(callerID, fmt.Sprintf("%sへの%s", target.Label(), kind.Label())); err != nil {
		return err
	}
	return validateItemRef(ref, isComment)
}

// IncrementCommentCount は投稿のコメント数を1加算する。認証は不要。
func (s *Service) IncrementCommentCount(ctx context.Context, postID string) error {
	if err := ValidateID("postId", postID); err != nil {
		return err
	}

	ref := model.PostRef(postID)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ok, err := tx.Counters().Increment(ctx, ref, model.FieldCommentCount, 1)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewItemNotFoundError(ref)
		}
		return nil
	})
	return classify(err, func(cause error) *model.APIError {
		return model.NewUnknownError("コメント数の更新に失敗しました。", cause)
	})
}

// EngagementState は呼び出し元ユーザーのいいね/よくないねの状態を返す。
// commentIDが空の場合は投稿そのものの状態を返す。
func (s *Service) EngagementState(ctx context.Context, callerID, postID, commentID string) (EngagementState, error) {
	ref := model.CommentRef(postID, commentID)
	if err := requireCaller(callerID, "評価状態の取得"); err != nil {
		return EngagementState{}, err
	}
	if err := validateItemRef(ref, commentID != ""); err != nil {
		return EngagementState{}, err
	}

	markers := s.store.Markers()
	liked, err := markers.Exists(ctx, ref, model.MarkerLike, callerID)
	if err != nil {
		return EngagementState{}, model.NewInternalError("評価状態の取得に失敗しました。", err)
	}
	disliked, err := markers.Exists(ctx, ref, model.MarkerDislike, callerID)
	if err != nil {
		return EngagementState{}, model.NewInternalError("評価状態の取得に失敗しました。", err)
	}
	return EngagementState{Liked: liked, Disliked: disliked}, nil
}
