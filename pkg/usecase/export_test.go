package usecase

import "time"

// SetClock replaces the clock used for result timestamps
func (uc *SyncUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// NewIdentityResolver is exported for testing
var NewIdentityResolver = newIdentityResolver

// IdentityResolver is exported for testing
type IdentityResolver = identityResolver
