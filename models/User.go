package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User roles. A parent manages groups and driving; a child is linked to
// parents and only follows schedules.
const (
	RoleParent = "parent"
	RoleChild  = "child"
)

type User struct {
	gorm.Model
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" gorm:"uniqueIndex"`
	Password  string `json:"-"`
	Role      string `json:"role" gorm:"type:varchar(20);default:parent;index"`
	AvatarURL string `json:"avatarURL"`

	// Cloudinary public ID of the current avatar, kept so a replaced
	// image can be destroyed.
	AvatarPublicID string `json:"-"`

	// Parent<->child links, kept on both sides as JSON arrays of user IDs.
	ParentIDs datatypes.JSON `json:"parentIDs"`
	ChildIDs  datatypes.JSON `json:"childIDs"`
}

// Custom JSON marshaling so clients get plain ID arrays instead of raw
// datatypes.JSON bytes.
func (u *User) MarshalJSON() ([]byte, error) {
	type Alias User
	aux := &struct {
		ParentIDs []uint `json:"parentIDs"`
		ChildIDs  []uint `json:"childIDs"`
		*Alias
	}{
		ParentIDs: []uint{},
		ChildIDs:  []uint{},
		Alias:     (*Alias)(u),
	}

	if u.ParentIDs != nil {
		var parentIDs []uint
		if err := json.Unmarshal(u.ParentIDs, &parentIDs); err == nil {
			aux.ParentIDs = parentIDs
		}
	}

	if u.ChildIDs != nil {
		var childIDs []uint
		if err := json.Unmarshal(u.ChildIDs, &childIDs); err == nil {
			aux.ChildIDs = childIDs
		}
	}

	return json.Marshal(aux)
}
