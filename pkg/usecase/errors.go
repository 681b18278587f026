package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// ErrSyncInProgress is returned when another sync of the same connection is running
	ErrSyncInProgress = goerr.New("sync already in progress")

	// ErrConnectionTestFailed is returned when the platform rejects the connection credentials
	ErrConnectionTestFailed = goerr.New("connection test failed")

	ErrUserDiscoveryUnsupported = goerr.New("user discovery is not supported for this platform")
)

// Messages recorded in SyncResult.Errors
const (
	msgConnectionNotFound = "connection not found"
	msgSyncGated          = "connection is not active or sync is disabled"
)

// Context keys for error values
const (
	ConnectionIDKey = "connection_id"
	MappingIDKey    = "mapping_id"
	PlatformKey     = "platform"
)
