package cli

import (
	"io"

	"github.com/secmon-lab/tributary/pkg/domain/model"
)

var ParseDuration = parseDuration

type SyncOutcome = syncOutcome

func NewSyncOutcome(conn *model.IntegrationConnection, result *model.SyncResult) SyncOutcome {
	return syncOutcome{conn: conn, result: result}
}

func PrintSyncSummary(w io.Writer, outcomes []SyncOutcome) {
	printSyncSummary(w, outcomes)
}
