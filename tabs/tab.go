// Package tabs is the session registry: the ordered set of login sessions ("tabs") a
// workspace holds and which one of them is active.
package tabs

import (
	"strconv"
	"strings"
)

const labelPrefix = "Session "

// Tab is the persisted metadata of one session. Token material never lives here.
type Tab struct {
	ID     string `json:"id"`     // Opaque, stable for the session's lifetime
	Name   string `json:"name"`   // User facing label, e.g. "Session 2"
	Active bool   `json:"active"` // At most one tab in a workspace is active
}

// NextLabel returns "Session n" for the smallest positive n not used by an existing tab.
// Gaps left by removed tabs are reused; custom labels do not take part.
func NextLabel(existing []Tab) string {
	used := make(map[int]struct{}, len(existing))
	for _, t := range existing {
		if n, ok := labelNumber(t.Name); ok {
			used[n] = struct{}{}
		}
	}
	n := 1
	for {
		if _, taken := used[n]; !taken {
			return labelPrefix + strconv.Itoa(n)
		}
		n++
	}
}

func labelNumber(name string) (int, bool) {
	suffix, ok := strings.CutPrefix(name, labelPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func indexOf(list []Tab, id string) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// markActive sets the Active flag on exactly the tab with id (or none when id is empty).
func markActive(list []Tab, id string) {
	for i := range list {
		list[i].Active = list[i].ID == id
	}
}
