package session

import "github.com/duespay/portal/internal/duespay"

// normalizeCurrent resolves the canonical current session from a profile
// payload. The backend has delivered it in three places; precedence is the
// nested association field, then the top-level field, then the active entry
// of the sessions list, then the first entry as a last resort.
func normalizeCurrent(p *duespay.Profile) *duespay.Session {
	if p == nil {
		return nil
	}
	if p.Association != nil && p.Association.CurrentSession != nil {
		return p.Association.CurrentSession
	}
	if p.CurrentSession != nil {
		return p.CurrentSession
	}
	if len(p.Sessions) > 0 {
		for i := range p.Sessions {
			if p.Sessions[i].IsActive {
				return &p.Sessions[i]
			}
		}
		return &p.Sessions[0]
	}
	return nil
}

// pickCurrent chooses a current session from a plain session list: the active
// entry, else the first.
func pickCurrent(list []duespay.Session) *duespay.Session {
	if len(list) == 0 {
		return nil
	}
	for i := range list {
		if list[i].IsActive {
			return &list[i]
		}
	}
	return &list[0]
}
