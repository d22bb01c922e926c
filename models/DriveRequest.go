package models

import "time"

// Drive slot directions: driving the kids TO practice or back FROM it.
const (
	DirectionTo   = "to"
	DirectionFrom = "from"
)

// DriveRequest statuses.
const (
	DriveStatusPending  = "pending"
	DriveStatusApproved = "approved"
	DriveStatusDeclined = "declined"
)

// DriveRequest is a broadcast ask for a volunteer to fill one driving slot
// of a practice. It is meaningful only while the target slot is open; once
// any parent accepts, the practice driver field is set to the acceptor and
// the request flips to approved.
type DriveRequest struct {
	ID      uint  `json:"id" gorm:"primaryKey"`
	GroupID uint  `json:"groupID" gorm:"not null;index"`
	Group   Group `json:"-" gorm:"foreignKey:GroupID"`

	PracticeID uint     `json:"practiceID" gorm:"not null;index"`
	Practice   Practice `json:"-" gorm:"foreignKey:PracticeID"`

	// Denormalized practice date for display/sort without loading the practice.
	PracticeDate time.Time `json:"practiceDate" gorm:"type:date;index"`

	Direction string `json:"direction" gorm:"size:8;index"`

	RequesterID uint `json:"requesterID" gorm:"not null;index"`
	Requester   User `json:"requester" gorm:"foreignKey:RequesterID"`

	Status       string `json:"status" gorm:"size:16;index"`
	AcceptedByID *uint  `json:"acceptedByID"`
	DeclinedByID *uint  `json:"declinedByID"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidDirection reports whether direction is one of the two slot names.
func ValidDirection(direction string) bool {
	return direction == DirectionTo || direction == DirectionFrom
}
