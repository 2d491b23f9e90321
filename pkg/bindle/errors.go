package bindle

import (
	"github.com/bindlekit/bindle/pkg/core"
)

var (
	ErrNotFound  = core.ErrNotFound
	ErrInvalid   = core.ErrInvalid
	ErrConflict  = core.ErrConflict
	ErrIntegrity = core.ErrIntegrity
	ErrStorage   = core.ErrStorage
	ErrClosed    = core.ErrClosed
)
