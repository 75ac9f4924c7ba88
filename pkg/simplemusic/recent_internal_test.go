package simplemusic

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAggregateRecent(t *testing.T) {
	at := func(m int) time.Time { return time.Date(2024, 1, 1, 0, m, 0, 0, time.UTC) }
	a, b, c, gone := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	songs := map[uuid.UUID]*Song{
		a: {ID: a, Title: "A"},
		b: {ID: b, Title: "B"},
		c: {ID: c, Title: "C"},
	}

	t.Run("unordered input", func(t *testing.T) {
		events := []*PlayEvent{
			{SongID: b, PlayedAt: at(4)},
			{SongID: a, PlayedAt: at(1)},
			{SongID: a, PlayedAt: at(5)},
			{SongID: gone, PlayedAt: at(6)},
			{SongID: b, PlayedAt: at(2)},
		}
		out := aggregateRecent(events, songs, 20)
		if assert.Len(t, out, 2) {
			assert.Equal(t, a, out[0].SongID)
			assert.Equal(t, at(5), out[0].PlayedAt)
			assert.Equal(t, b, out[1].SongID)
			assert.Equal(t, at(4), out[1].PlayedAt)
		}
		assert.Equal(t, b, events[0].SongID, "input is not reordered")
	})

	t.Run("ties keep store order", func(t *testing.T) {
		events := []*PlayEvent{
			{SongID: c, PlayedAt: at(3)},
			{SongID: a, PlayedAt: at(3)},
		}
		out := aggregateRecent(events, songs, 20)
		if assert.Len(t, out, 2) {
			assert.Equal(t, c, out[0].SongID)
			assert.Equal(t, a, out[1].SongID)
		}
	})

	t.Run("limit", func(t *testing.T) {
		events := []*PlayEvent{
			{SongID: a, PlayedAt: at(3)},
			{SongID: b, PlayedAt: at(2)},
			{SongID: c, PlayedAt: at(1)},
		}
		out := aggregateRecent(events, songs, 2)
		assert.Len(t, out, 2)
	})

	t.Run("empty", func(t *testing.T) {
		out := aggregateRecent(nil, songs, 20)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})
}
