package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func TestParsePattern(t *testing.T) {
	got, err := ParsePattern("short, medium ,pool:3,long")
	require.NoError(t, err)
	assert.Equal(t, []Slot{
		CategorySlot(model.CategoryShort),
		CategorySlot(model.CategoryMedium),
		PoolSlot(3),
		CategorySlot(model.CategoryLong),
	}, got)

	for _, bad := range []string{"", "short,,long", "pool:", "pool:x", "pool:0"} {
		_, err := ParsePattern(bad)
		assert.ErrorIs(t, err, ErrInvalidRequest, bad)
	}
}

func TestSlot_YAMLRoundTrip(t *testing.T) {
	var doc struct {
		Pattern []Slot `yaml:"pattern"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("pattern: [short, pool:2]\n"), &doc))
	assert.Equal(t, []Slot{CategorySlot(model.CategoryShort), PoolSlot(2)}, doc.Pattern)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "pool:2")
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "playout:build:main:1780293600:86400", LockKey("main", t0, 24*time.Hour))
}
