package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	TouchLogin(ctx context.Context, username string, at time.Time) error
	List(ctx context.Context) ([]types.User, error)
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// UserService owns user profiles and username uniqueness.
type UserService struct {
	repo  UserRepository
	vault *PasswordVault
	now   func() time.Time
}

func NewUserService(repo UserRepository, vault *PasswordVault) *UserService {
	return &UserService{repo: repo, vault: vault, now: storeNow}
}

// Register stores a new user with a hashed password. The returned profile
// never carries the hash.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	if strings.TrimSpace(in.Username) == "" {
		return types.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if in.Password == "" {
		return types.User{}, fmt.Errorf("%w: password is required", ErrValidation)
	}

	hashed, err := s.vault.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	now := s.now()
	user, err := s.repo.Create(ctx, types.User{
		Username:     in.Username,
		PasswordHash: hashed,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		JoinedAt:     now,
		LastLoginAt:  now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, fmt.Errorf("username %q: %w", in.Username, ErrConflict)
		}
		return types.User{}, err
	}

	user.PasswordHash = ""
	return user, nil
}

// Authenticate checks username and password. Unknown users, wrong passwords
// and unusable stored hashes all return the same ErrCredential value.
func (s *UserService) Authenticate(ctx context.Context, username, password string) error {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.vault.BurnVerify(password)
			return ErrCredential
		}
		return err
	}

	ok, err := s.vault.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return ErrCredential
	}
	return nil
}

// TouchLogin records a successful login.
func (s *UserService) TouchLogin(ctx context.Context, username string) error {
	if err := s.repo.TouchLogin(ctx, username, s.now()); err != nil {
		return userError(username, err)
	}
	return nil
}

// Get returns the profile of username without its password hash.
func (s *UserService) Get(ctx context.Context, username string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, userError(username, err)
	}
	user.PasswordHash = ""
	return user, nil
}

// ListAll returns every user as a summary, ordered by username.
func (s *UserService) ListAll(ctx context.Context) ([]types.UserSummary, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]types.UserSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, user.Summary())
	}
	return summaries, nil
}

func userError(username string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return err
}
