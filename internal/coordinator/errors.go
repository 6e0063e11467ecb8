package coordinator

import "golang.org/x/xerrors"

// Every error returned by a Coordinator operation wraps exactly one of these.
var (
	ErrUnauthorized      = xerrors.New("unauthorized")
	ErrInvalidState      = xerrors.New("invalid state")
	ErrResourceExhausted = xerrors.New("resource exhausted")
	ErrNotFound          = xerrors.New("not found")
	ErrInvariant         = xerrors.New("invariant violation")
	ErrInvalidArgument   = xerrors.New("invalid argument")
)
