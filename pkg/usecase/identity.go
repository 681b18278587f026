package usecase

import (
	"github.com/secmon-lab/tributary/pkg/domain/model"
)

// identityResolver maps external emails to employees for the duration of one sync run
type identityResolver struct {
	byEmail map[string]*model.UserMapping
	mapped  []*model.UserMapping
}

func newIdentityResolver(mappings []*model.UserMapping) *identityResolver {
	r := &identityResolver{byEmail: make(map[string]*model.UserMapping, len(mappings))}
	for _, m := range mappings {
		r.byEmail[model.NormalizeEmail(m.ExternalEmail)] = m
		if m.IsMapped() {
			r.mapped = append(r.mapped, m)
		}
	}
	return r
}

// Resolve returns the employee mapped to email, or nil when the identity is unknown or unmapped
func (r *identityResolver) Resolve(email string) *model.EmployeeID {
	key := model.NormalizeEmail(email)
	if key == "" {
		return nil
	}
	m, ok := r.byEmail[key]
	if !ok || !m.IsMapped() {
		return nil
	}
	id := *m.EmployeeID
	return &id
}

// Mapped returns the mappings paired with an employee in load order
func (r *identityResolver) Mapped() []*model.UserMapping {
	return r.mapped
}
