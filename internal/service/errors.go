package service

import "errors"

// Business-level errors; handlers map them to HTTP status codes.
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotOwner           = errors.New("not room owner")
	ErrInvalidScheme      = errors.New("invalid scheme")
)
