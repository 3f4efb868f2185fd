package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type AdminSeed struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// EnsureAdmin registers the configured administrator if the email is free.
// An existing account is left as it is, including its password.
func (s *AuthService) EnsureAdmin(ctx context.Context, seed AdminSeed) error {
	if seed.Email == "" {
		return nil
	}
	id, err := s.Register(ctx, RegisterInput{
		Name:        seed.Name,
		PhoneNumber: seed.Phone,
		Email:       seed.Email,
		Password:    seed.Password,
		UserType:    "admin",
	})
	if errors.Is(err, ErrDuplicate) {
		s.log.Info("admin account already present", zap.String("email", seed.Email))
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("admin account created", zap.Int64("user_id", id))
	return nil
}
