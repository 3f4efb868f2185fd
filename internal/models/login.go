package models

import "time"

// LoginEvent is one LOGIN_HISTORY row, written after a successful login.
type LoginEvent struct {
	ID         int64     `db:"login_id"`
	UserID     int64     `db:"user_id"`
	LoginTime  time.Time `db:"login_time"`
	IPAddress  *string   `db:"ip_address"`
	DeviceInfo *string   `db:"device_info"`
}
