package services

import (
	"context"

	"github.com/messagely/apiserver/types"
)

// AuthService turns credentials into tokens.
type AuthService struct {
	users  *UserService
	tokens *TokenIssuer
}

func NewAuthService(users *UserService, tokens *TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Register creates the account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	user, err := s.users.Register(ctx, in)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(types.Identity{Username: user.Username})
}

// Login verifies credentials, records the login and returns a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if err := s.users.Authenticate(ctx, username, password); err != nil {
		return "", err
	}
	if err := s.users.TouchLogin(ctx, username); err != nil {
		return "", err
	}
	return s.tokens.Issue(types.Identity{Username: username})
}

// Identify resolves a bearer token to the identity it was issued for.
func (s *AuthService) Identify(token string) (types.Identity, error) {
	return s.tokens.Parse(token)
}
