package tasksync

import (
	"sync"

	"davtodo/internal/models"
)

// hub fans status changes out to per-user subscribers. Each subscriber
// channel holds only the latest undelivered status.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan models.SyncStatus]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[chan models.SyncStatus]struct{})}
}

func (h *hub) subscribe(userID string) (<-chan models.SyncStatus, func()) {
	ch := make(chan models.SyncStatus, 1)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan models.SyncStatus]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
}

func (h *hub) publish(userID string, status models.SyncStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- status:
			continue
		default:
		}
		// Drop the stale status so the newest one is delivered.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- status:
		default:
		}
	}
}
