package types_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/domain/types"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.Platform
		wantErr bool
	}{
		{name: "azure devops", input: "AZURE_DEVOPS", want: types.PlatformAzureDevOps},
		{name: "asana", input: "ASANA", want: types.PlatformAsana},
		{name: "confluence", input: "CONFLUENCE", want: types.PlatformConfluence},
		{name: "lower case is rejected", input: "asana", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParsePlatform(tt.input)
			if tt.wantErr {
				gt.Error(t, err)
				gt.Bool(t, errors.Is(err, types.ErrInvalidPlatform)).True()
				return
			}
			gt.NoError(t, err)
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestPlatform_DisplayName(t *testing.T) {
	gt.Value(t, types.PlatformAzureDevOps.DisplayName()).Equal("Azure DevOps")
	gt.Value(t, types.PlatformAsana.DisplayName()).Equal("Asana")
	gt.Value(t, types.PlatformConfluence.DisplayName()).Equal("Confluence")
	gt.Value(t, types.Platform("OTHER").DisplayName()).Equal("OTHER")
}

func TestParseSyncStatus(t *testing.T) {
	for _, s := range []string{"SUCCESS", "PARTIAL", "FAILED"} {
		got, err := types.ParseSyncStatus(s)
		gt.NoError(t, err)
		gt.Value(t, got.String()).Equal(s)
	}

	_, err := types.ParseSyncStatus("RUNNING")
	gt.Bool(t, errors.Is(err, types.ErrInvalidSyncStatus)).True()
}

func TestSyncTrigger_Normalize(t *testing.T) {
	gt.Value(t, types.SyncTrigger("").Normalize()).Equal(types.SyncTriggerManual)
	gt.Value(t, types.SyncTriggerScheduled.Normalize()).Equal(types.SyncTriggerScheduled)
}
