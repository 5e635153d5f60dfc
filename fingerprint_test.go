package saiRelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-relay/types"
)

func TestFingerprint_StableAcrossFieldOrder(t *testing.T) {
	first, err := Fingerprint("weather.today", map[string]interface{}{"city": "Berlin", "units": "metric"})
	require.NoError(t, err)

	second, err := Fingerprint("weather.today", map[string]interface{}{"units": "metric", "city": "Berlin"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFingerprint_DistinguishesEndpointAndPayload(t *testing.T) {
	base, err := Fingerprint("weather.today", map[string]interface{}{"city": "Berlin"})
	require.NoError(t, err)

	otherEndpoint, err := Fingerprint("weather.tomorrow", map[string]interface{}{"city": "Berlin"})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherEndpoint)

	otherPayload, err := Fingerprint("weather.today", map[string]interface{}{"city": "Paris"})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherPayload)
}

func TestFingerprint_NilPayload(t *testing.T) {
	fingerprint, err := Fingerprint("health.check", nil)
	require.NoError(t, err)
	assert.Contains(t, fingerprint, "health.check:")
}

func TestFingerprint_EmptyEndpoint(t *testing.T) {
	_, err := Fingerprint("", map[string]interface{}{"city": "Berlin"})
	assert.ErrorIs(t, err, types.ErrEndpointEmpty)
}

func TestFingerprint_UnserializablePayload(t *testing.T) {
	_, err := Fingerprint("weather.today", map[string]interface{}{"bad": make(chan int)})
	assert.ErrorIs(t, err, types.ErrPayloadNotCanonical)
}
