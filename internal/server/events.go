package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// sseEvent is one server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

// terminal reports whether the stream ends after this event.
func (e sseEvent) terminal() bool {
	return e.Event == "complete" || e.Event == "error"
}

// eventHub fans events out to SSE subscribers. Slow subscribers miss
// progress events rather than block the publisher. A terminal event evicts
// the oldest buffered one so it is always delivered, and it is kept for
// subscribers that arrive after the run ended.
type eventHub struct {
	mu    sync.Mutex
	subs  map[chan sseEvent]struct{}
	final *sseEvent
}

func (h *eventHub) publish(name string, v any) {
	evt := sseEvent{Event: name, Data: mustJSON(v)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if evt.terminal() {
		h.final = &evt
	}
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			if !evt.terminal() {
				continue
			}
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}

// finished returns the terminal event, if one was published.
func (h *eventHub) finished() (sseEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.final == nil {
		return sseEvent{}, false
	}
	return *h.final, true
}

func (h *eventHub) subscribe() chan sseEvent {
	ch := make(chan sseEvent, 32)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan sseEvent]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan sseEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// stream writes initial, then every hub event, until a terminal event or
// the client goes away.
func (h *eventHub) stream(w http.ResponseWriter, r *http.Request, initial sseEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	writeEvent(w, initial)
	if evt, ok := h.finished(); ok {
		writeEvent(w, evt)
		flusher.Flush()
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			writeEvent(w, evt)
			flusher.Flush()
			if evt.terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt sseEvent) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return string(b)
}
