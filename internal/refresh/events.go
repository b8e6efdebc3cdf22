package refresh

import "sync"

// hub fans status changes out to subscribers. Sends never block; a slow
// subscriber misses intermediate states and still sees the latest one on
// its next receive.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Status
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Status)}
}

func (h *hub) subscribe(bufSize int) (int, <-chan Status) {
	if bufSize < 1 {
		bufSize = 1
	}
	ch := make(chan Status, bufSize)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id int) {
	h.mu.Lock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(st Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- st:
		default:
			// Full: drop the oldest pending state to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving the job status each time a run
// starts or finishes. Release it with Unsubscribe.
func (j *Job) Subscribe(bufSize int) (int, <-chan Status) {
	return j.hub.subscribe(bufSize)
}

// Unsubscribe removes a subscriber and closes its channel.
func (j *Job) Unsubscribe(id int) {
	j.hub.unsubscribe(id)
}
