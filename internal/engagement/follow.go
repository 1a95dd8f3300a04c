package engagement

import (
	"context"
	"log/slog"

	"github.com/hitoshi/chime/internal/model"
	"github.com/hitoshi/chime/internal/repository"
)

// followMutation は2ユーザー間のフォロー関係を変更する。
// 戻り値はそれぞれのドキュメントが変更されたかを表す。
type followMutation func(follower, followee *model.User) (followerChanged, followeeChanged bool)

// FollowUser はloggedInUserIDがtargetUserIDをフォローする。
// 既にフォロー済みの側は変更しないため、同時に2回呼ばれても二重に加算されない。
func (s *Service) FollowUser(ctx context.Context, callerID, loggedInUserID, targetUserID string) error {
	return s.mutateFollow(ctx, callerID, loggedInUserID, targetUserID, "フォロー",
		func(follower, followee *model.User) (bool, bool) {
			return follower.AddFollowing(followee.ID), followee.AddFollower(follower.ID)
		})
}

// UnfollowUser はloggedInUserIDによるtargetUserIDのフォローを解除する。
func (s *Service) UnfollowUser(ctx context.Context, callerID, loggedInUserID, targetUserID string) error {
	return s.mutateFollow(ctx, callerID, loggedInUserID, targetUserID, "フォロー解除",
		func(follower, followee *model.User) (bool, bool) {
			return follower.RemoveFollowing(followee.ID), followee.RemoveFollower(follower.ID)
		})
}

// mutateFollow は両ユーザーをID昇順に行ロックして読み取り、変更のあった側だけを書き込む。
func (s *Service) mutateFollow(ctx context.Context, callerID, loggedInUserID, targetUserID, action string, mutate followMutation) error {
	if err := requireCaller(callerID, action); err != nil {
		return err
	}
	if err := ValidateID("targetUserId", targetUserID); err != nil {
		return err
	}
	if err := ValidateID("loggedInUserId", loggedInUserID); err != nil {
		return err
	}
	if loggedInUserID != callerID {
		return model.NewInvalidArgumentError("loggedInUserIdがサインイン中のユーザーと一致しません")
	}
	if loggedInUserID == targetUserID {
		return model.NewInvalidArgumentError("自分自身は対象にできません")
	}

	var followerChanged, followeeChanged bool
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		users := tx.Users()

		// デッドロックを避けるためロック順序をIDで固定する
		first, second := loggedInUserID, targetUserID
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*model.User, 2)
		for _, id := range []string{first, second} {
			u, err := users.FindByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if u == nil {
				return model.NewUserNotFoundError(id)
			}
			locked[id] = u
		}

		follower, followee := locked[loggedInUserID], locked[targetUserID]
		followerChanged, followeeChanged = mutate(follower, followee)

		if followerChanged {
			if err := users.UpdateFollowEdges(ctx, follower); err != nil {
				return err
			}
		}
		if followeeChanged {
			if err := users.UpdateFollowEdges(ctx, followee); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err, func(cause error) *model.APIError {
			return model.NewInternalError(action+"に失敗しました。", cause)
		})
	}

	if !followerChanged && !followeeChanged {
		s.logger.DebugContext(ctx, "follow edge already in target state",
			slog.String("action", action),
			slog.String("user_id", loggedInUserID),
			slog.String("target_user_id", targetUserID),
		)
	}
	return nil
}

// IsFollowing は呼び出し元ユーザーがtargetUserIDをフォローしているかを返す。
func (s *Service) IsFollowing(ctx context.Context, callerID, targetUserID string) (bool, error) {
	if err := requireCaller(callerID, "フォロー状態の取得"); err != nil {
		return false, err
	}
	if err := ValidateID("targetUserId", targetUserID); err != nil {
		return false, err
	}

	user, err := s.store.Users().FindByID(ctx, callerID)
	if err != nil {
		return false, model.NewInternalError("フォロー状態の取得に失敗しました。", err)
	}
	if user == nil {
		return false, model.NewUserNotFoundError(callerID)
	}
	return user.IsFollowing(targetUserID), nil
}
