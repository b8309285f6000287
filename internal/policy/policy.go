// Package policy holds the per-endpoint authorization rules. Rules are pure:
// they look only at the identity produced by the access guard and the target
// the handler resolved.
package policy

import (
	"github.com/Skotchmaster/staff_api/internal/models"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

type Rule func(id tokens.Identity) bool

func AdminOnly() Rule {
	return func(id tokens.Identity) bool {
		return id.Role == models.RoleAdmin
	}
}

// SelfOrAdmin passes for admins and for the user whose id is target.
func SelfOrAdmin(target uint) Rule {
	return func(id tokens.Identity) bool {
		return id.Role == models.RoleAdmin || (id.ID != 0 && id.ID == target)
	}
}

// Authorize returns service.ErrForbidden unless every rule passes.
func Authorize(id tokens.Identity, rules ...Rule) error {
	for _, rule := range rules {
		if !rule(id) {
			return service.ErrForbidden
		}
	}
	return nil
}
