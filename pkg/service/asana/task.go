package asana

import (
	"encoding/json"
	"strings"
)

const (
	StatusCompleted  = "Completed"
	StatusIncomplete = "Incomplete"
)

// TaskStatus returns the name of the section holding task in the given project. The first
// membership with a section is used when the project has none. Without any section the completion
// flag decides.
func TaskStatus(task *Task, projectGID string) string {
	var fallback string
	for _, m := range task.Memberships {
		if m.Section == nil || m.Section.Name == "" {
			continue
		}
		if m.Project != nil && m.Project.GID == projectGID {
			return m.Section.Name
		}
		if fallback == "" {
			fallback = m.Section.Name
		}
	}
	if fallback != "" {
		return fallback
	}

	if task.Completed {
		return StatusCompleted
	}
	return StatusIncomplete
}

// TaskPriority returns the value of the first custom field whose name contains "priority"
func TaskPriority(task *Task) *string {
	for _, f := range task.CustomFields {
		if !strings.Contains(strings.ToLower(f.Name), "priority") {
			continue
		}
		switch {
		case f.EnumValue != nil && f.EnumValue.Name != "":
			return &f.EnumValue.Name
		case f.DisplayValue != nil && *f.DisplayValue != "":
			return f.DisplayValue
		case f.TextValue != nil && *f.TextValue != "":
			return f.TextValue
		}
		return nil
	}
	return nil
}

// UnmarshalJSON keeps the native record in Raw alongside the typed fields
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &v.Raw); err != nil {
		return err
	}
	*t = Task(v)
	return nil
}
