package model

import (
	"slices"
	"time"
)

// User はフォロー関係を非正規化して保持するユーザードキュメント。
// フォローされる側はFollowers/FollowerCount、フォローする側はFollowing/FollowingCountを持つ。
// 不変条件: A ∈ B.Followers ⟺ B ∈ A.Following
type User struct {
	ID             string
	Username       string
	Followers      []string
	FollowerCount  int64
	Following      []string
	FollowingCount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasFollower はuserIDがフォロワーに含まれるかを返す。
func (u *User) HasFollower(userID string) bool {
	return slices.Contains(u.Followers, userID)
}

// IsFollowing はuserIDをフォローしているかを返す。
func (u *User) IsFollowing(userID string) bool {
	return slices.Contains(u.Following, userID)
}

// AddFollower はフォロワーを追加する。既に含まれている場合は何もせずfalseを返す。
func (u *User) AddFollower(userID string) bool {
	if u.HasFollower(userID) {
		return false
	}
	u.Followers = append(u.Followers, userID)
	u.FollowerCount++
	return true
}

// RemoveFollower はフォロワーを削除する。含まれていない場合は何もせずfalseを返す。
func (u *User) RemoveFollower(userID string) bool {
	if !u.HasFollower(userID) {
		return false
	}
	u.Followers = slices.DeleteFunc(u.Followers, func(id string) bool { return id == userID })
	u.FollowerCount = max(u.FollowerCount-1, 0)
	return true
}

// AddFollowing はフォロー先を追加する。既に含まれている場合は何もせずfalseを返す。
func (u *User) AddFollowing(userID string) bool {
	if u.IsFollowing(userID) {
		return false
	}
	u.Following = append(u.Following, userID)
	u.FollowingCount++
	return true
}

// RemoveFollowing はフォロー先を削除する。含まれていない場合は何もせずfalseを返す。
func (u *User) RemoveFollowing(userID string) bool {
	if !u.IsFollowing(userID) {
		return false
	}
	u.Following = slices.DeleteFunc(u.Following, func(id string) bool { return id == userID })
	u.FollowingCount = max(u.FollowingCount-1, 0)
	return true
}
