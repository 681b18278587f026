package model

import "time"

// ConfluencePage is a wiki page. Pages are stored flat; ParentID forms the tree.
// (ConnectionID, ExternalID) is the upsert key.
type ConfluencePage struct {
	ConnectionID ConnectionID
	ExternalID   string
	Type         string
	Status       string
	Title        string
	Content      string

	SpaceID   string
	SpaceKey  string
	SpaceName string

	ParentID *string
	Position *int

	AuthorID       string
	OwnerID        string
	VersionNumber  int
	VersionMessage string

	CreatedDate *time.Time
	UpdatedDate *time.Time
	URL         string

	Metadata     map[string]any
	Stale        bool
	LastSyncedAt time.Time
}
