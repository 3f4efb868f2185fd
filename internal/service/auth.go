// Package service holds the registration and login workflows. Handlers
// translate HTTP into these calls and map the returned errors to statuses.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"pg-user-api/internal/credential"
	"pg-user-api/internal/models"
	"pg-user-api/internal/repository"
)

// UserStore is the subset of the repository the workflows need.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, ev models.LoginEvent) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

type IDSource interface {
	Next() int64
}

// PhotoStager keeps an out-of-band copy of an uploaded photo.
type PhotoStager interface {
	Stage(ctx context.Context, userID int64, filename string, data []byte) (string, error)
}

type Options struct {
	RecordLogins  bool
	MaxPhotoBytes int64
}

type AuthService struct {
	store  UserStore
	codec  credential.Codec
	ids    IDSource
	stager PhotoStager
	log    *zap.Logger
	opts   Options
	now    func() time.Time
}

func NewAuthService(store UserStore, codec credential.Codec, ids IDSource, stager PhotoStager, log *zap.Logger, opts Options) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		store:  store,
		codec:  codec,
		ids:    ids,
		stager: stager,
		log:    log,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Name          string
	PhoneNumber   string
	Email         string
	Password      string
	UserType      string
	PGName        string
	Address       string
	Profession    string
	AadhaarNumber string
	Photo         []byte
	PhotoName     string
}

func (in RegisterInput) validate(maxPhoto int64) error {
	var missing []string
	required := []struct{ name, value string }{
		{"name", in.Name},
		{"phone_number", in.PhoneNumber},
		{"email", in.Email},
		{"password", in.Password},
		{"user_type", in.UserType},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Message: "Missing required fields", Fields: missing}
	}
	if !validEmail(in.Email) {
		return invalid("Invalid email address")
	}
	if len(in.Password) > credential.MaxPasswordBytes {
		return invalid(fmt.Sprintf("Password must be at most %d bytes", credential.MaxPasswordBytes))
	}
	if strings.IndexByte(in.Password, 0) >= 0 {
		return invalid("Password must not contain NUL bytes")
	}
	if maxPhoto > 0 && int64(len(in.Photo)) > maxPhoto {
		return invalid("Photo too large")
	}
	return nil
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	local, domain, ok := strings.Cut(email, "@")
	return ok && local != "" && domain != "" && !strings.Contains(domain, "@")
}

// Register creates an Active account and returns its ID. The existence check
// only saves a hash; the insert's unique constraint decides duplicates.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (int64, error) {
	if err := in.validate(s.opts.MaxPhotoBytes); err != nil {
		return 0, err
	}
	email := models.NormalizeEmail(in.Email)

	exists, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrDuplicate
	}

	secret, err := s.codec.Hash(in.Password)
	if err != nil {
		return 0, fmt.Errorf("derive credential: %w", err)
	}

	u := &models.User{
		ID:            s.ids.Next(),
		Name:          strings.TrimSpace(in.Name),
		PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
		Email:         email,
		UserType:      strings.TrimSpace(in.UserType),
		PGName:        optional(in.PGName),
		Photo:         in.Photo,
		Address:       optional(in.Address),
		Profession:    optional(in.Profession),
		AadhaarNumber: optional(in.AadhaarNumber),
		PasswordHash:  secret,
		Status:        models.UserStatusActive,
		CreatedAt:     s.now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return 0, fmt.Errorf("%w: %w", ErrDuplicate, err)
		}
		return 0, err
	}

	if len(in.Photo) > 0 && s.stager != nil {
		path, err := s.stager.Stage(ctx, u.ID, in.PhotoName, in.Photo)
		if err != nil {
			s.log.Warn("photo staging failed", zap.Int64("user_id", u.ID), zap.Error(err))
		} else if path != "" {
			s.log.Debug("photo staged", zap.Int64("user_id", u.ID), zap.String("path", path))
		}
	}

	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("user_type", u.UserType))
	return u.ID, nil
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// Login checks, in order: account exists, account is active, password
// matches. A successful login may also rehash the secret and record an event;
// neither can fail the login.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*models.Profile, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, invalid("Email and password are required")
	}

	u, err := s.store.GetByEmail(ctx, models.NormalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, ErrAccountInactive
	}

	ok, err := s.codec.Verify(in.Password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify user %d: %w", u.ID, err)
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	if s.codec.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u.ID, in.Password)
	}
	if s.opts.RecordLogins {
		ev := models.LoginEvent{
			ID:         s.ids.Next(),
			UserID:     u.ID,
			LoginTime:  s.now(),
			IPAddress:  optional(in.IP),
			DeviceInfo: optional(in.UserAgent),
		}
		if err := s.store.RecordLogin(ctx, ev); err != nil {
			s.log.Warn("login event not recorded", zap.Int64("user_id", u.ID), zap.Error(err))
		}
	}

	return toProfile(u), nil
}

func (s *AuthService) rehash(ctx context.Context, id int64, password string) {
	secret, err := s.codec.Hash(password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, id, secret)
	}
	if err != nil {
		s.log.Warn("credential rehash failed", zap.Int64("user_id", id), zap.Error(err))
	}
}

func toProfile(u *models.User) *models.Profile {
	p := &models.Profile{
		UserID:        u.ID,
		Name:          u.Name,
		PhoneNumber:   u.PhoneNumber,
		Email:         u.Email,
		UserType:      u.UserType,
		PGName:        u.PGName,
		Address:       u.Address,
		Profession:    u.Profession,
		AadhaarNumber: u.AadhaarNumber,
		Status:        u.Status,
	}
	if len(u.Photo) > 0 {
		enc := base64.StdEncoding.EncodeToString(u.Photo)
		p.PhotoBase64 = &enc
	}
	return p
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
