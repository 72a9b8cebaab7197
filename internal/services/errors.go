package services

import (
	"errors"

	"github.com/messagely/apiserver/internal/store"
)

// Error taxonomy surfaced to the routing layer. Match with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrConflict      = store.ErrConflict
	ErrNotFound      = store.ErrNotFound
	ErrCredential    = errors.New("invalid username or password")
	ErrAuthorization = errors.New("not authorized")
)
