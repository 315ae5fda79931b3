package repository

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionTypersDropsExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	raw := map[string]string{
		"u2":     strconv.FormatInt(now.Add(3*time.Second).UnixMilli(), 10),
		"u1":     strconv.FormatInt(now.Add(time.Second).UnixMilli(), 10),
		"gone":   strconv.FormatInt(now.Add(-time.Second).UnixMilli(), 10),
		"edge":   strconv.FormatInt(now.UnixMilli(), 10),
		"broken": "soon",
	}

	live, expired := partitionTypers(raw, now)

	require.Len(t, live, 2)
	assert.Equal(t, "u1", live[0].UserID)
	assert.Equal(t, "u2", live[1].UserID)
	assert.ElementsMatch(t, []string{"gone", "edge", "broken"}, expired)
}

func TestTypingKeys(t *testing.T) {
	assert.Equal(t, "typing:c1", typingKey("c1"))
	assert.Equal(t, "chat:c1:typing", typingChannel("c1"))
}
