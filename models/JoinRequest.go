package models

import "time"

// JoinRequest statuses. pending is the only non-terminal state; blocked
// rows are purged entirely when the user is unblocked.
const (
	JoinStatusPending  = "pending"
	JoinStatusApproved = "approved"
	JoinStatusDeclined = "declined"
	JoinStatusBlocked  = "blocked"
)

// JoinRequest is a user's ask to join a group, created when they submit a
// valid invite code. At most one pending request per (group, requester).
type JoinRequest struct {
	ID      uint  `json:"id" gorm:"primaryKey"`
	GroupID uint  `json:"groupID" gorm:"not null;index"`
	Group   Group `json:"group" gorm:"foreignKey:GroupID"`

	RequesterID uint `json:"requesterID" gorm:"not null;index"`
	Requester   User `json:"requester" gorm:"foreignKey:RequesterID"`

	Status  string `json:"status" gorm:"size:16;index"`
	Message string `json:"message" gorm:"size:500"` // optional note from requester

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	RespondedAt *time.Time `json:"respondedAt"`
}

// Notification is an in-database notification record for join-request and
// drive-request events. Push delivery is out of scope here.
type Notification struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"userID" gorm:"not null;index"`
	User   User `json:"user" gorm:"foreignKey:UserID"`

	Type    string `json:"type" gorm:"size:32;index"` // join_request, join_approved, drive_accepted, ...
	Title   string `json:"title" gorm:"size:100"`
	Message string `json:"message" gorm:"size:500"`

	RefType string `json:"refType" gorm:"size:32"` // group, practice, drive_request
	RefID   uint   `json:"refID"`

	IsRead    bool       `json:"isRead" gorm:"default:false"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}
