package models

import "time"

// LinkCode is a short-lived shareable code for linking a parent and a
// child account. Redeeming it links both user records and deletes the code.
type LinkCode struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Code string `json:"code" gorm:"size:6;uniqueIndex"`

	CreatorID   uint   `json:"creatorID" gorm:"not null;index"`
	Creator     User   `json:"-" gorm:"foreignKey:CreatorID"`
	CreatorRole string `json:"creatorRole" gorm:"size:20"`

	GroupID uint `json:"groupID" gorm:"index"`

	CreatedAt time.Time `json:"createdAt"`
}
