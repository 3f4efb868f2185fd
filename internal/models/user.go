package models

import (
	"strings"
	"time"
)

const (
	UserStatusActive   = "Active"
	UserStatusInactive = "Inactive"
)

// User mirrors a USER_REGISTER row. Optional columns are pointers so that
// NULL survives the round trip.
type User struct {
	ID            int64     `db:"user_id"`
	Name          string    `db:"name"`
	PhoneNumber   string    `db:"phone_number"`
	Email         string    `db:"email"`
	UserType      string    `db:"user_type"`
	PGName        *string   `db:"pg_name"`
	Photo         []byte    `db:"photo"`
	Address       *string   `db:"address"`
	Profession    *string   `db:"profession"`
	AadhaarNumber *string   `db:"aadhaar_number"`
	PasswordHash  string    `db:"password_hash"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
}

// IsActive compares the stored status case-insensitively.
func (u *User) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(u.Status), UserStatusActive)
}

// Profile is what a successful login returns. It never carries the
// credential secret.
type Profile struct {
	UserID        int64   `json:"user_id"`
	Name          string  `json:"name"`
	PhoneNumber   string  `json:"phone_number"`
	Email         string  `json:"email"`
	UserType      string  `json:"user_type"`
	PGName        *string `json:"pg_name"`
	PhotoBase64   *string `json:"photo_base64"`
	Address       *string `json:"address"`
	Profession    *string `json:"profession"`
	AadhaarNumber *string `json:"aadhaar_number"`
	Status        string  `json:"status"`
}

// UserSummary is the listing shape used by the admin tool.
type UserSummary struct {
	ID        int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	UserType  string    `db:"user_type" json:"user_type"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NormalizeEmail is applied on every write and lookup, so email matching
// is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
