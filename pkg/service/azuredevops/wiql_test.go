package azuredevops_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/service/azuredevops"
)

func TestQuoteWIQL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{in: "Alpha", want: "'Alpha'"},
		{in: "O'Brien", want: "'O''Brien'"},
		{in: "x' OR [System.Id] > '0", want: "'x'' OR [System.Id] > ''0'"},
		{in: "", want: "''"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			gt.Value(t, azuredevops.QuoteWIQL(tc.in)).Equal(tc.want)
		})
	}
}

func TestBuildWorkItemQuery(t *testing.T) {
	t.Run("project only", func(t *testing.T) {
		q := azuredevops.BuildWorkItemQuery("Alpha", azuredevops.WorkItemFilter{})
		gt.Value(t, q).Equal("SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = 'Alpha' ORDER BY [System.ChangedDate] DESC")
	})

	t.Run("all filters escaped", func(t *testing.T) {
		since := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
		q := azuredevops.BuildWorkItemQuery("Bob's Project", azuredevops.WorkItemFilter{
			AssignedTo: "o'neil@example.com",
			State:      "Active",
			StartDate:  &since,
		})
		gt.Value(t, q).Equal("SELECT [System.Id] FROM WorkItems WHERE " +
			"[System.TeamProject] = 'Bob''s Project' AND " +
			"[System.AssignedTo] = 'o''neil@example.com' AND " +
			"[System.State] = 'Active' AND " +
			"[System.ChangedDate] >= '2024-03-05' " +
			"ORDER BY [System.ChangedDate] DESC")
	})
}
