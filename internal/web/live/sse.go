package live

import (
	"net/http"
	"time"
)

// keepalivePeriod is the interval between SSE comment pings
const keepalivePeriod = 30 * time.Second

// ServeSSE streams hub frames to one client until it disconnects or the hub
// drops it
func ServeSSE(w http.ResponseWriter, r *http.Request, hub *Hub) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := NewClient(TransportSSE)
	if !hub.Register(client) {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	_, _ = w.Write(formatSSE(Frame{Event: EventConnected, Data: []byte(`{"status":"connected"}`)}))
	flusher.Flush()

	ticker := time.NewTicker(keepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-client.send:
			if !ok {
				return
			}
			if _, err := w.Write(formatSSE(frame)); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
