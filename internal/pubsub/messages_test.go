package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDropProgressEvent(t *testing.T) {
	body := `{
		"type": "drop-progress",
		"data": {
			"drop_id": "d1",
			"channel_id": "ch-9",
			"current_progress_min": 7.5,
			"required_progress_min": 30
		}
	}`

	ev, err := parseDropEvent([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, EventDropProgress, ev.Type)
	assert.Equal(t, "d1", ev.DropID)
	assert.Equal(t, "ch-9", ev.ChannelID)
	assert.Equal(t, 7.5, ev.CurrentMinutes)
	assert.Equal(t, 30, ev.RequiredMinutes)
	assert.Empty(t, ev.InstanceID)
}

func TestParseDropClaimEvent(t *testing.T) {
	body := `{
		"type": "drop-claim",
		"data": {
			"drop_id": "d1",
			"channel_id": "ch-9",
			"drop_instance_id": "inst-1"
		}
	}`

	ev, err := parseDropEvent([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, EventDropClaim, ev.Type)
	assert.Equal(t, "d1", ev.DropID)
	assert.Equal(t, "inst-1", ev.InstanceID)
}

// The edge is inconsistent about numeric types, so progress fields must
// parse whether they arrive as integers or floats.
func TestParseDropEventNumericForms(t *testing.T) {
	body := `{
		"type": "drop-progress",
		"data": {
			"drop_id": "d2",
			"current_progress_min": 12,
			"required_progress_min": 45.0
		}
	}`

	ev, err := parseDropEvent([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, 12.0, ev.CurrentMinutes)
	assert.Equal(t, 45, ev.RequiredMinutes)
}

func TestParseDropEventIgnoresOtherTypes(t *testing.T) {
	body := `{"type": "points-earned", "data": {"drop_id": "d1"}}`

	ev, err := parseDropEvent([]byte(body))
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestParseDropEventErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"type": "drop-progress"`},
		{"missing data", `{"type": "drop-progress"}`},
		{"data wrong shape", `{"type": "drop-claim", "data": "nope"}`},
		{"missing drop id", `{"type": "drop-progress", "data": {"current_progress_min": 5}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := parseDropEvent([]byte(tc.body))
			require.Error(t, err)
			assert.Nil(t, ev)
		})
	}
}
