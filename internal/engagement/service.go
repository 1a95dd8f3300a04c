// Package engagement は集計カウンタとエンゲージメント状態のドメインロジックを提供する。
// 閲覧数・いいね/よくないね・コメント数・フォロー関係の更新は、
// すべて1つのトランザクション内で「読み取り→検査→書き込み」を行う。
package engagement

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/chime/internal/model"
	"github.com/hitoshi/chime/internal/repository"
)

// DefaultViewCooldown は同一閲覧者の閲覧を再カウントするまでの待機時間。
const DefaultViewCooldown = 60 * time.Second

// Service はエンゲージメント操作のサービス層。
// 呼び出し元のユーザーIDは引数で明示的に受け取り、空文字列は匿名を表す。
type Service struct {
	store    repository.Transactor
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithViewCooldown は閲覧のクールダウン時間を設定する。
func WithViewCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.Transactor, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		cooldown: DefaultViewCooldown,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ViewCooldown は設定されている閲覧のクールダウン時間を返す。
func (s *Service) ViewCooldown() time.Duration {
	return s.cooldown
}

// classify はトランザクションから返ったエラーを呼び出し元向けのAPIErrorに変換する。
// 既にAPIErrorの場合はそのまま返し、それ以外はwrapで包む。
func classify(err error, wrap func(cause error) *model.APIError) error {
	if err == nil {
		return nil
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return wrap(err)
}
