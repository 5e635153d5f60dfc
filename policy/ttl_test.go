package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-relay/types"
)

func TestTable_ResolveFallsBackToDefault(t *testing.T) {
	table := NewTable(&types.TTLConfig{
		Default: 2 * time.Hour,
		Endpoints: map[string]time.Duration{
			"weather.today": 30 * time.Minute,
			"auth.token":    0,
		},
	})

	assert.Equal(t, 30*time.Minute, table.Resolve("weather.today"))
	assert.Equal(t, time.Duration(0), table.Resolve("auth.token"))
	assert.Equal(t, 2*time.Hour, table.Resolve("anything.else"))
}

func TestTable_NilConfigUsesBuiltinDefault(t *testing.T) {
	table := NewTable(nil)

	assert.Equal(t, DefaultTTL, table.Resolve("some.endpoint"))
}

func TestTable_WithEndpointOverrides(t *testing.T) {
	table := NewTable(&types.TTLConfig{Default: time.Hour})

	table.WithEndpoint("news.feed", 5*time.Minute)
	assert.Equal(t, 5*time.Minute, table.Resolve("news.feed"))

	table.WithEndpoint("news.feed", 0)
	assert.Equal(t, time.Duration(0), table.Resolve("news.feed"))
}

func TestTable_Cacheable(t *testing.T) {
	table := NewTable(&types.TTLConfig{
		Default: time.Hour,
		Endpoints: map[string]time.Duration{
			"auth.token": 0,
		},
	})

	assert.True(t, table.Cacheable("weather.today"))
	assert.False(t, table.Cacheable("auth.token"))
}
