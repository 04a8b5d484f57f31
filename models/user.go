// models/user.go
package models

// DefaultStartingBalance is the point balance every new player begins with.
const DefaultStartingBalance = 1000

// User is the local player record. Display fields (username, avatar) are
// mirrored from the profile service by the sync worker; Balance is owned
// here and written only inside the awarding transaction.
type User struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	ExternalUserID string `json:"external_user_id" gorm:"uniqueIndex;not null"` // profile service identity

	Username  string `json:"username" gorm:"index;not null"`
	Handle    string `json:"handle" gorm:"uniqueIndex"` // slugified username
	AvatarURL string `json:"avatar_url,omitempty"`

	Balance float64 `json:"balance" gorm:"not null;default:1000"`

	Timestamps
}
