package auth

// AllowList is the set of chat user ids allowed to run privileged commands.
// An empty list allows everyone.
type AllowList struct {
	ids map[int64]struct{}
}

// NewAllowList creates an allow-list from ids
func NewAllowList(ids []int64) *AllowList {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &AllowList{ids: set}
}

// Open reports whether the list is empty and therefore allows everyone
func (a *AllowList) Open() bool {
	return len(a.ids) == 0
}

// Allowed reports whether id may run privileged commands
func (a *AllowList) Allowed(id int64) bool {
	if a.Open() {
		return true
	}
	_, ok := a.ids[id]
	return ok
}
