package notify

import "strings"

func matchTargets(targets []Target, ev Event) []Target {
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if !t.Enabled || !scopeMatches(t, ev) || !eventAllowed(t.EventAllowlist, ev.Type) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func scopeMatches(t Target, ev Event) bool {
	switch t.ScopeType {
	case ScopeAll:
		return true
	case ScopeRoom:
		return t.ScopeValue != "" && t.ScopeValue == ev.RoomID
	case ScopeGame:
		return t.ScopeValue != "" && t.ScopeValue == ev.GameType
	default:
		return false
	}
}

func eventAllowed(allowlist []string, evType string) bool {
	if len(allowlist) == 0 {
		return true
	}
	evType = strings.ToLower(evType)
	for _, v := range allowlist {
		if v == evType {
			return true
		}
	}
	return false
}
