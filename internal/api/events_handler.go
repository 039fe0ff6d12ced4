package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/moagen/internal/events"
)

const sseKeepAlive = 15 * time.Second

// sseStream writes hub events as server-sent event frames, skipping anything
// already delivered or outside the requested run.
type sseStream struct {
	w      io.Writer
	runID  string
	lastID int64
}

func (s *sseStream) send(ev events.Event) error {
	if ev.ID <= s.lastID || (s.runID != "" && ev.RunID != s.runID) {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	frame := fmt.Sprintf("id: %d\n", ev.ID)
	if ev.Type != "" {
		frame += "event: " + ev.Type + "\n"
	}
	if _, err := io.WriteString(s.w, frame+"data: "+string(data)+"\n\n"); err != nil {
		return err
	}
	s.lastID = ev.ID
	return nil
}

func (s *sseStream) ping() error {
	_, err := io.WriteString(s.w, ": keep-alive\n\n")
	return err
}

// handleEvents streams generation progress as server-sent events. The
// optional run_id query parameter restricts the stream to one run.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := &sseStream{
		w:      w,
		runID:  r.URL.Query().Get("run_id"),
		lastID: parseLastEventID(r.Header.Get("Last-Event-ID")),
	}

	// Subscribe before replaying the backlog so nothing published in between is lost.
	live, cancel := s.events.Subscribe()
	defer cancel()

	for _, ev := range s.events.SnapshotSince(stream.lastID) {
		if err := stream.send(ev); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			err = stream.send(ev)
		case <-keepAlive.C:
			err = stream.ping()
		}
		if err != nil {
			return
		}
		flusher.Flush()
	}
}

// parseLastEventID reads the reconnect cursor; anything unusable restarts
// from the retained backlog.
func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
