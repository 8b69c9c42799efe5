package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduper_DropsWithinTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(time.Minute, 10)
	d.now = func() time.Time { return now }

	assert.True(t, d.ShouldProcess("z1|42"))
	assert.False(t, d.ShouldProcess("z1|42"))
	assert.True(t, d.ShouldProcess("z2|42"))

	now = now.Add(2 * time.Minute)
	assert.True(t, d.ShouldProcess("z1|42"))
}

func TestDeduper_EmptyIDAlwaysProcessed(t *testing.T) {
	d := New(time.Minute, 10)
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))
	assert.Equal(t, 0, d.Len())

	var nilDeduper *Deduper
	assert.True(t, nilDeduper.ShouldProcess("x"))
}

func TestDeduper_BoundedSize(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(time.Hour, 3)
	d.now = func() time.Time { return now }

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		now = now.Add(time.Second)
		assert.True(t, d.ShouldProcess(id))
	}
	assert.Equal(t, 3, d.Len())
	// "a" was evicted first, so it is accepted again.
	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("e"))
}
