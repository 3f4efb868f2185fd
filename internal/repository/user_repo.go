package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pg-user-api/internal/database"
	"pg-user-api/internal/models"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepo is the storage collaborator for user and login-history rows.
// Queries are written with ? placeholders and rebound for the active driver.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `user_id, name, phone_number, email, user_type, pg_name, photo,
	address, profession, aadhaar_number, password_hash, status, created_at`

// Create inserts u. A UNIQUE violation on email is reported as
// ErrDuplicateEmail; that constraint is the authority on duplicates.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	q := r.db.Rebind(`INSERT INTO user_register (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	var photo any
	if len(u.Photo) > 0 {
		photo = u.Photo
	}
	_, err := r.db.ExecContext(ctx, q,
		u.ID, u.Name, u.PhoneNumber, u.Email, u.UserType, u.PGName, photo,
		u.Address, u.Profession, u.AadhaarNumber, u.PasswordHash, u.Status, u.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	q := r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM user_register WHERE email = ?)`)
	if err := r.db.GetContext(ctx, &exists, q, email); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM user_register WHERE email = ?`, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM user_register WHERE user_id = ?`, id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*models.User, error) {
	var u models.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(q), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// RecordLogin appends a login-history row.
func (r *UserRepo) RecordLogin(ctx context.Context, ev models.LoginEvent) error {
	q := r.db.Rebind(`INSERT INTO login_history (login_id, user_id, login_time, ip_address, device_info)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, ev.ID, ev.UserID, ev.LoginTime, ev.IPAddress, ev.DeviceInfo); err != nil {
		return fmt.Errorf("insert login event: %w", err)
	}
	return nil
}

func (r *UserRepo) LoginHistory(ctx context.Context, userID int64, limit int) ([]models.LoginEvent, error) {
	q := r.db.Rebind(`SELECT login_id, user_id, login_time, ip_address, device_info
		FROM login_history WHERE user_id = ? ORDER BY login_time DESC LIMIT ?`)
	var events []models.LoginEvent
	if err := r.db.SelectContext(ctx, &events, q, userID, limit); err != nil {
		return nil, fmt.Errorf("list login events: %w", err)
	}
	return events, nil
}

// UpdatePasswordHash replaces the stored secret, e.g. after a cost change.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	q := r.db.Rebind(`UPDATE user_register SET password_hash = ? WHERE user_id = ?`)
	res, err := r.db.ExecContext(ctx, q, hash, id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireAffected(res)
}

// SetStatus changes the account status. Only the admin tool and the admin
// seed call this; no HTTP route does.
func (r *UserRepo) SetStatus(ctx context.Context, email, status string) error {
	q := r.db.Rebind(`UPDATE user_register SET status = ? WHERE email = ?`)
	res, err := r.db.ExecContext(ctx, q, status, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireAffected(res)
}

func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]models.UserSummary, error) {
	q := r.db.Rebind(`SELECT user_id, name, email, user_type, status, created_at
		FROM user_register ORDER BY created_at DESC, user_id DESC LIMIT ? OFFSET ?`)
	var users []models.UserSummary
	if err := r.db.SelectContext(ctx, &users, q, limit, offset); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Ping is used by the health endpoint.
func (r *UserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
