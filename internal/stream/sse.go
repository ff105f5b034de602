package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"webforge/internal/logging"
	"webforge/internal/types"
)

// SSEHandler streams one session's events as Server-Sent Events.
// Frames use "event: <type>" plus "data: <json>"; the stream closes
// with "event: complete" after a terminal event.
type SSEHandler struct {
	bus *Bus
}

// NewSSEHandler creates an SSEHandler over bus.
func NewSSEHandler(bus *Bus) *SSEHandler {
	return &SSEHandler{bus: bus}
}

// Serve streams events for sessionID until the client disconnects or a
// terminal event is sent. fromSeq resumes after the given sequence
// number; pass 0 for the full retained history.
func (h *SSEHandler) Serve(w http.ResponseWriter, r *http.Request, sessionID string, fromSeq uint64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, replayGap := h.bus.Subscribe(sessionID, fromSeq)
	defer sub.Cancel()

	fmt.Fprintf(w, ": connected\n\n")
	if replayGap {
		fmt.Fprintf(w, "event: replay-gap\ndata: {\"session_id\":%q}\n\n", sessionID)
	}
	flusher.Flush()

	logging.Stream("SSE client attached to session %s from seq %d", sessionID, fromSeq)

	for {
		select {
		case <-r.Context().Done():
			logging.StreamDebug("SSE client left session %s", sessionID)
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logging.StreamWarn("failed to marshal event seq %d: %v", ev.Seq, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()

			if terminalEvent(ev.Type) {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

func terminalEvent(t types.EventType) bool {
	switch t {
	case types.EventTaskCompleted, types.EventTaskCancelled, types.EventTaskError:
		return true
	}
	return false
}
