package model

import (
	"regexp"
	"time"
)

// DeveloperCommit is a VCS commit attributed to a mapped employee.
// (ConnectionID, CommitHash) is the upsert key.
type DeveloperCommit struct {
	ConnectionID ConnectionID
	EmployeeID   EmployeeID
	CommitHash   string
	Message      string
	URL          string
	Repository   string

	FilesChanged int
	LinesAdded   int
	LinesDeleted int

	AuthorName     string
	AuthorEmail    string
	AuthorDate     *time.Time
	CommitterName  string
	CommitterEmail string
	CommitDate     *time.Time

	LinkedWorkItems []string
	LastSyncedAt    time.Time
}

var workItemRefPattern = regexp.MustCompile(`#(\d+)`)

// ExtractLinkedWorkItems returns the numeric IDs referenced as "#123" in a commit message,
// in order of first appearance. It never returns nil.
func ExtractLinkedWorkItems(message string) []string {
	ids := []string{}
	seen := make(map[string]struct{})
	for _, m := range workItemRefPattern.FindAllStringSubmatch(message, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}
