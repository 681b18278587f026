package model

import "github.com/m-mizutani/goerr/v2"

// Validation errors
var (
	ErrInvalidConnection = goerr.New("invalid connection")
	ErrInvalidMapping    = goerr.New("invalid user mapping")
)

// Context keys for error values
const (
	ConnectionIDKey = "connection_id"
	PlatformKey     = "platform"
	ExternalIDKey   = "external_id"
	EmailKey        = "email"
)
