package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(DatasetStarted, "run-1", DatasetPayload{Definition: "SEA_f_1_s_10", Position: 0})

	ev := <-ch
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, DatasetStarted, ev.Type)
	assert.Equal(t, "run-1", ev.RunID)

	var p DatasetPayload
	require.NoError(t, json.Unmarshal(ev.Data, &p))
	assert.Equal(t, "SEA_f_1_s_10", p.Definition)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":{"definition":"SEA_f_1_s_10"`)
}

func TestHubBacklogDropsOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(RunStarted, "", nil)
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})
	assert.Equal(t, json.RawMessage("{}"), snap[0].Data)

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	h.Publish(RunCompleted, "run", RunPayload{Total: 1})
}

func TestNilHubPublish(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() { h.Publish(DatasetFailed, "run", nil) })
}
