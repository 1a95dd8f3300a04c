package model

import "time"

// MarkerKind はエンゲージメントマーカーのサブコレクション名を表す。
type MarkerKind string

const (
	// MarkerLike はいいねを表す。取り消し時に削除される。
	MarkerLike MarkerKind = "likes"
	// MarkerDislike はよくないねを表す。取り消し時に削除される。
	MarkerDislike MarkerKind = "dislikes"
	// MarkerView は閲覧記録を表す。削除されず、クールダウン経過後に時刻のみ更新される。
	MarkerView MarkerKind = "viewRecords"
)

// Label はメッセージ表示用の名称を返す。
func (k MarkerKind) Label() string {
	switch k {
	case MarkerLike:
		return "いいね"
	case MarkerDislike:
		return "よくないね"
	case MarkerView:
		return "閲覧"
	default:
		return string(k)
	}
}

// CounterField はマーカーに対応する集計カウンタを返す。
func (k MarkerKind) CounterField() CounterField {
	switch k {
	case MarkerLike:
		return FieldLikeCount
	case MarkerDislike:
		return FieldDislikeCount
	default:
		return FieldViews
	}
}

// Valid は既知のマーカー種別かを返す。
func (k MarkerKind) Valid() bool {
	return k == MarkerLike || k == MarkerDislike || k == MarkerView
}

// Marker は(アイテム, アクター)ごとのエンゲージメント記録。
// マーカーの存在が「そのアクターが既に操作したか」の唯一の根拠となる。
type Marker struct {
	Item     ItemRef
	Kind     MarkerKind
	ActorID  string
	MarkedAt time.Time // likedAt / dislikedAt / lastViewedAt
}
