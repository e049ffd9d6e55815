package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntFromAny(t *testing.T) {
	assert.Equal(t, 42, IntFromAny(float64(42)))
	assert.Equal(t, 42, IntFromAny(42))
	assert.Equal(t, 42, IntFromAny(int64(42)))
	assert.Equal(t, 42, IntFromAny(json.Number("42")))
	assert.Equal(t, 0, IntFromAny("42"))
	assert.Equal(t, 0, IntFromAny(nil))
}

func TestFloatFromAny(t *testing.T) {
	assert.Equal(t, 7.5, FloatFromAny(7.5))
	assert.Equal(t, 7.0, FloatFromAny(7))
	assert.Equal(t, 7.0, FloatFromAny(int64(7)))
	assert.Equal(t, 7.5, FloatFromAny(json.Number("7.5")))
	assert.Equal(t, 0.0, FloatFromAny("7.5"))
	assert.Equal(t, 0.0, FloatFromAny(nil))
}

func TestMapExtraction(t *testing.T) {
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"drop_id": "d1",
		"required_progress_min": 30,
		"is_claimed": true
	}`), &data))

	assert.Equal(t, "d1", StringFromMap(data, "drop_id"))
	assert.Equal(t, 30, IntFromMap(data, "required_progress_min"))
	assert.True(t, BoolFromMap(data, "is_claimed"))

	assert.Empty(t, StringFromMap(data, "missing"))
	assert.Zero(t, IntFromMap(data, "missing"))
	assert.False(t, BoolFromMap(data, "missing"))

	// Type mismatches fall back to zero values instead of panicking.
	assert.Empty(t, StringFromMap(data, "required_progress_min"))
	assert.Zero(t, IntFromMap(data, "drop_id"))
	assert.False(t, BoolFromMap(data, "drop_id"))
}
