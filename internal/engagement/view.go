package engagement

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/chime/internal/model"
	"github.com/hitoshi/chime/internal/repository"
)

// ViewOutcome は閲覧数更新の結果を表す。
type ViewOutcome int

const (
	// ViewCounted は閲覧数を加算したことを表す。
	ViewCounted ViewOutcome = iota
	// ViewSuppressed はクールダウン中のため加算しなかったことを表す。
	// 呼び出し元には成功として返す。
	ViewSuppressed
)

// String はログ・メトリクス用の名称を返す。
func (o ViewOutcome) String() string {
	if o == ViewSuppressed {
		return "suppressed"
	}
	return "counted"
}

// ViewStatus は閲覧者ごとの閲覧記録の状態。
type ViewStatus struct {
	Viewed       bool
	LastViewedAt time.Time
}

// IncrementPostView は投稿の閲覧数を1加算する。
// 閲覧者キーが決まる場合、最終閲覧からクールダウン時間が経過していなければ何も書き込まずに
// ViewSuppressedを返す。投稿が存在しない場合はviews=1で作成する。
// クールダウン判定・加算・閲覧記録の更新は1つのトランザクションで行うため、
// 同一閲覧者の同時リクエストは1回しか加算されない。
func (s *Service) IncrementPostView(ctx context.Context, callerID, postID, anonymousViewerID string) (ViewOutcome, error) {
	if err := ValidateID("postId", postID); err != nil {
		return ViewCounted, err
	}
	viewerKey := ResolveViewerKey(callerID, anonymousViewerID)
	if callerID == "" && viewerKey != "" {
		if err := ValidateID("anonymousViewerId", viewerKey); err != nil {
			return ViewCounted, err
		}
	}

	ref := model.PostRef(postID)
	var outcome ViewOutcome
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		outcome = ViewCounted
		now := s.now()

		if viewerKey != "" {
			record, err := tx.Markers().Find(ctx, ref, model.MarkerView, viewerKey)
			if err != nil {
				return err
			}
			if record != nil && now.Sub(record.MarkedAt) < s.cooldown {
				outcome = ViewSuppressed
				return nil
			}
		}

		if err := tx.Counters().InitializeOrIncrement(ctx, ref, model.FieldViews, 1); err != nil {
			return err
		}

		if viewerKey != "" {
			return tx.Markers().Upsert(ctx, &model.Marker{
				Item:     ref,
				Kind:     model.MarkerView,
				ActorID:  viewerKey,
				MarkedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		return ViewCounted, classify(err, func(cause error) *model.APIError {
			return model.NewInternalError("閲覧数の更新に失敗しました。", cause)
		})
	}

	if outcome == ViewSuppressed {
		s.logger.DebugContext(ctx, "view suppressed by cooldown",
			slog.String("post_id", postID),
			slog.Bool("anonymous", callerID == ""),
		)
	}
	return outcome, nil
}

// ViewStatus は閲覧者の閲覧記録を返す。閲覧者キーが決まらない場合は未閲覧として扱う。
func (s *Service) ViewStatus(ctx context.Context, callerID, postID, anonymousViewerID string) (ViewStatus, error) {
	if err := ValidateID("postId", postID); err != nil {
		return ViewStatus{}, err
	}
	viewerKey := ResolveViewerKey(callerID, anonymousViewerID)
	if viewerKey == "" {
		return ViewStatus{}, nil
	}
	if callerID == "" {
		if err := ValidateID("anonymousViewerId", viewerKey); err != nil {
			return ViewStatus{}, err
		}
	}

	record, err := s.store.Markers().Find(ctx, model.PostRef(postID), model.MarkerView, viewerKey)
	if err != nil {
		return ViewStatus{}, model.NewInternalError("閲覧記録の取得に失敗しました。", err)
	}
	if record == nil {
		return ViewStatus{}, nil
	}
	return ViewStatus{Viewed: true, LastViewedAt: record.MarkedAt}, nil
}
