package azuredevops

import (
	"strings"
)

// wiqlDateLayout is the date-only precision WIQL accepts without timePrecision
const wiqlDateLayout = "2006-01-02"

// QuoteWIQL renders s as a WIQL string literal. Single quotes are doubled, which is the only
// escape the WIQL grammar defines inside a literal.
func QuoteWIQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type wiqlBuilder struct {
	conds []string
}

func (b *wiqlBuilder) where(field, op, literal string) *wiqlBuilder {
	b.conds = append(b.conds, "["+field+"] "+op+" "+literal)
	return b
}

func (b *wiqlBuilder) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT [System.Id] FROM WorkItems")
	if len(b.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conds, " AND "))
	}
	sb.WriteString(" ORDER BY [System.ChangedDate] DESC")
	return sb.String()
}

// BuildWorkItemQuery returns the WIQL selecting the IDs of work items in project matching filter.
// Every interpolated value goes through QuoteWIQL.
func BuildWorkItemQuery(project string, filter WorkItemFilter) string {
	b := &wiqlBuilder{}
	b.where(FieldTeamProject, "=", QuoteWIQL(project))
	if filter.AssignedTo != "" {
		b.where(FieldAssignedTo, "=", QuoteWIQL(filter.AssignedTo))
	}
	if filter.State != "" {
		b.where(FieldState, "=", QuoteWIQL(filter.State))
	}
	if filter.StartDate != nil {
		b.where(FieldChangedDate, ">=", QuoteWIQL(filter.StartDate.UTC().Format(wiqlDateLayout)))
	}
	return b.String()
}
