package usecase

import (
	"time"

	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/service/platform"
)

// DefaultSyncTimeout bounds a single sync run
const DefaultSyncTimeout = 30 * time.Minute

type UseCases struct {
	repo        interfaces.Repository
	factory     platform.Factory
	syncTimeout time.Duration

	Connection *ConnectionUseCase
	Mapping    *MappingUseCase
	Sync       *SyncUseCase
}

type Option func(*UseCases)

// WithPlatformFactory replaces the factory building platform clients
func WithPlatformFactory(f platform.Factory) Option {
	return func(uc *UseCases) {
		uc.factory = f
	}
}

// WithSyncTimeout sets the deadline of each sync run. Non-positive values keep the default.
func WithSyncTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		if d > 0 {
			uc.syncTimeout = d
		}
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:        repo,
		syncTimeout: DefaultSyncTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}
	if uc.factory == nil {
		uc.factory = platform.New()
	}

	uc.Connection = NewConnectionUseCase(repo, uc.factory)
	uc.Mapping = NewMappingUseCase(repo, uc.factory)
	uc.Sync = NewSyncUseCase(repo, uc.factory, uc.syncTimeout)
	// deleting a connection and syncing it exclude each other
	uc.Connection.locks = uc.Sync.locks

	return uc
}
