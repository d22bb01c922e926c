package models

import "time"

// Group is a carpool circle (a team). It owns an invite code used for the
// join flow, a member set and a blocked set. Groups are never deleted.
type Group struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:80;not null"`

	// 6-char uppercase alphanumeric, looked up by value during join.
	InviteCode string `json:"inviteCode" gorm:"size:6;uniqueIndex"`

	CreatorID uint `json:"creatorID" gorm:"not null;index"`
	Creator   User `json:"creator" gorm:"foreignKey:CreatorID"`

	Members []GroupMember `json:"members" gorm:"foreignKey:GroupID"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GroupMember is one row per (group, user). The creator always has a row;
// inserts are idempotent (unique pair + do-nothing on conflict).
type GroupMember struct {
	ID      uint  `json:"id" gorm:"primaryKey"`
	GroupID uint  `json:"groupID" gorm:"not null;uniqueIndex:idx_group_member"`
	Group   Group `json:"-" gorm:"foreignKey:GroupID"`

	UserID uint `json:"userID" gorm:"not null;uniqueIndex:idx_group_member"`
	User   User `json:"user" gorm:"foreignKey:UserID"`

	Role     string     `json:"role" gorm:"size:16;index"` // owner, member
	JoinedAt *time.Time `json:"joinedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BlockedUser marks a user as blocked from requesting to join a group.
type BlockedUser struct {
	ID      uint  `json:"id" gorm:"primaryKey"`
	GroupID uint  `json:"groupID" gorm:"not null;uniqueIndex:idx_group_blocked"`
	Group   Group `json:"-" gorm:"foreignKey:GroupID"`

	UserID uint `json:"userID" gorm:"not null;uniqueIndex:idx_group_blocked"`
	User   User `json:"user" gorm:"foreignKey:UserID"`

	CreatedAt time.Time `json:"createdAt"`
}
