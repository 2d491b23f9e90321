package core

import (
	"errors"
)

var (
	ErrNotFound  = errors.New("bindle: not found")
	ErrInvalid   = errors.New("bindle: invalid input")
	ErrConflict  = errors.New("bindle: already exists")
	ErrIntegrity = errors.New("bindle: content integrity violation")
	ErrStorage   = errors.New("bindle: storage failure")
	ErrClosed    = errors.New("bindle: registry closed")
)
