package models

import "time"

// Practice is a single practice occurrence for a group. Date is the
// start-of-day; StartTime/EndTime are wall-clock "HH:mm" strings.
//
// DriverToID / DriverFromID are the two driving slots. Zero means the slot
// is open; a non-zero value is the single user holding it. The drive
// request engine is the only writer that guards these transitions; a
// direct practice edit may overwrite them unconditionally.
type Practice struct {
	ID      uint  `json:"id" gorm:"primaryKey"`
	GroupID uint  `json:"groupID" gorm:"not null;index"`
	Group   Group `json:"-" gorm:"foreignKey:GroupID"`

	Date      time.Time `json:"date" gorm:"type:date;index"`
	StartTime string    `json:"startTime" gorm:"size:5"`
	EndTime   string    `json:"endTime" gorm:"size:5"`
	Location  string    `json:"location" gorm:"size:200"`

	DriverToID   uint `json:"driverToID" gorm:"default:0;index"`
	DriverFromID uint `json:"driverFromID" gorm:"default:0;index"`

	CreatorID uint `json:"creatorID" gorm:"index"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DriverFor returns the driver user ID for a direction (0 = slot open).
func (p *Practice) DriverFor(direction string) uint {
	if direction == DirectionTo {
		return p.DriverToID
	}
	return p.DriverFromID
}
