package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeenOrRecordDetectsDuplicate(t *testing.T) {
	d := NewDedup()
	require.False(t, d.SeenOrRecord("a"))
	require.True(t, d.SeenOrRecord("a"))
}

func TestSeenOrRecordExpiresAfterWindow(t *testing.T) {
	now := time.Now()
	d := NewDedup()
	d.now = func() time.Time { return now }

	require.False(t, d.SeenOrRecord("a"))
	now = now.Add(DedupWindow + time.Second)
	require.False(t, d.SeenOrRecord("a"))
}

func TestSeenOrRecordTracksMultipleIDsIndependently(t *testing.T) {
	d := NewDedup()
	require.False(t, d.SeenOrRecord("a"))
	require.False(t, d.SeenOrRecord("b"))
	require.True(t, d.SeenOrRecord("a"))
	require.True(t, d.SeenOrRecord("b"))
}
