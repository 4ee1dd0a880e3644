package tasksync

import "davtodo/internal/models"

// Reconcile merges the local and remote collections into one collection with
// unique identifiers. It performs no I/O and cannot fail.
//
// A task present on one side only is kept as is. When both sides hold the
// same identifier the record with the later UpdatedAt wins whole; ties go to
// the local record. The result lists local identifiers first, then
// remote-only ones, each in input order.
func Reconcile(local, remote []models.Task) []models.Task {
	localByID := make(map[string]models.Task, len(local))
	for _, t := range local {
		if _, dup := localByID[t.ID]; !dup {
			localByID[t.ID] = t
		}
	}
	remoteByID := make(map[string]models.Task, len(remote))
	for _, t := range remote {
		if _, dup := remoteByID[t.ID]; !dup {
			remoteByID[t.ID] = t
		}
	}

	resolved := make([]models.Task, 0, len(localByID)+len(remoteByID))
	seen := make(map[string]struct{}, cap(resolved))

	visit := func(id string) {
		if _, done := seen[id]; done {
			return
		}
		seen[id] = struct{}{}

		l, inLocal := localByID[id]
		r, inRemote := remoteByID[id]
		switch {
		case !inLocal:
			resolved = append(resolved, r)
		case !inRemote:
			resolved = append(resolved, l)
		case l.UpdatedAt.Before(r.UpdatedAt):
			resolved = append(resolved, r)
		default:
			resolved = append(resolved, l)
		}
	}

	for _, t := range local {
		visit(t.ID)
	}
	for _, t := range remote {
		visit(t.ID)
	}
	return resolved
}

// SameTasks reports whether two collections hold the same tasks regardless
// of order.
func SameTasks(a, b []models.Task) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]models.Task, len(a))
	for _, t := range a {
		byID[t.ID] = t
	}
	if len(byID) != len(a) {
		return false
	}
	for _, t := range b {
		other, ok := byID[t.ID]
		if !ok || !other.Equal(t) {
			return false
		}
		delete(byID, t.ID)
	}
	return len(byID) == 0
}
