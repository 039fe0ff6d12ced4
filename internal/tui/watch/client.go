package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/moagen/internal/events"
)

type (
	eventMsg           events.Event
	tickMsg            time.Time
	errMsg             error
	sseDisconnectedMsg struct{}
	reconnectMsg       struct{}
)

// healthMsg mirrors the /healthz response body.
type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Generating    bool   `json:"generating"`
	Generators    int    `json:"generators"`
}

const healthTimeout = 2 * time.Second

// get issues an authenticated GET; the caller closes the body.
func get(ctx context.Context, client *http.Client, apiURL, apiKey, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return client.Do(req)
}

// subscribeToEvents holds /events open and pushes every decoded event into
// ch. It yields sseDisconnectedMsg once the stream ends.
func subscribeToEvents(apiURL, apiKey string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		resp, err := get(context.Background(), http.DefaultClient, apiURL, apiKey, "/events")
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("GET /events: %s", resp.Status))
		}
		readEvents(bufio.NewScanner(resp.Body), ch)
		return sseDisconnectedMsg{}
	}
}

// readEvents decodes the JSON data line of each SSE frame. Comments and
// frames that fail to decode are skipped.
func readEvents(scanner *bufio.Scanner, ch chan<- events.Event) {
	var pending string
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			pending = data
			continue
		}
		if line != "" || pending == "" {
			continue
		}
		var ev events.Event
		if json.Unmarshal([]byte(pending), &ev) == nil {
			ch <- ev
		}
		pending = ""
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg { return eventMsg(<-ch) }
}

func fetchHealth(apiURL, apiKey string) tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	resp, err := get(ctx, http.DefaultClient, apiURL, apiKey, "/healthz")
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(fmt.Errorf("decode /healthz: %w", err))
	}
	return h
}
