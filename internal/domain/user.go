package domain

import "time"

// User is a registered identity. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
}

// Identity is what an access token resolves to.
type Identity struct {
	UserID   string
	Username string
}

// Identity returns the token-facing view of the user.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}
