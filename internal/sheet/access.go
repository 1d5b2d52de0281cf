package sheet

import (
	"strings"

	"scorecard.org/internal/auth"
)

// Resolve decides whether the principal may act on the sheet at the required
// level. The owning creator and any admin always receive full access.
// Otherwise the principal's email is matched against the sheet's shares: no
// row denies, a row always satisfies view, and edit requires the row's level
// to be edit. Every sheet read and write path calls this; there is no
// implicit access.
func Resolve(s *Sheet, principal auth.Principal, level AccessLevel) bool {
	if principal.IsAdmin() || s.CreatedBy == principal.User.ID {
		return true
	}
	for _, share := range s.Shares {
		if !strings.EqualFold(share.Email, principal.User.Email) {
			continue
		}
		if level == LevelView {
			return true
		}
		return share.Level == LevelEdit
	}
	return false
}

// ResolveOwner is the stricter gate for delete and sharing management:
// only the owning creator or an admin qualifies, shared access never does.
func ResolveOwner(s *Sheet, principal auth.Principal) bool {
	return principal.IsAdmin() || s.CreatedBy == principal.User.ID
}
