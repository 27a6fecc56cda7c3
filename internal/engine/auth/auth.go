// Package auth resolves a guild member into the capability set the
// engine checks. Membership in any configured lead role grants lead
// capability; role names are never inspected.
package auth

import (
	"fmt"

	"crewboard/internal/config"
)

// PermissionError indicates the actor lacks the capability for an
// operation.
type PermissionError struct {
	Action string
	Reason string
}

func (e PermissionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s requires elevated permission", e.Action)
}

// Permissions is an actor's capability set, computed once per
// interaction.
type Permissions struct {
	Administrator bool
	Lead          bool
}

// Resolve computes Permissions from the member's role ids against the
// configured lead-role id set.
func Resolve(cfg *config.Config, administrator bool, roleIDs []string) Permissions {
	p := Permissions{Administrator: administrator}
	if cfg == nil {
		return p
	}
	for _, id := range roleIDs {
		if cfg.IsLeadRole(id) {
			p.Lead = true
			break
		}
	}
	return p
}

// CanModerate reports whether the actor may perform lead-level task
// operations (cancel, submit for review on others' tasks, immediate
// close).
func (p Permissions) CanModerate() bool {
	return p.Administrator || p.Lead
}
