package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessHourDayWindow(t *testing.T) {
	start, end := 540, 1020
	bh := BusinessHour{
		MonStart: &start,
		MonEnd:   &end,
	}

	s, e := bh.DayWindow(time.Monday)
	require.NotNil(t, s)
	require.NotNil(t, e)
	assert.Equal(t, 540, *s)
	assert.Equal(t, 1020, *e)

	s, e = bh.DayWindow(time.Tuesday)
	assert.Nil(t, s)
	assert.Nil(t, e)

	s, e = bh.DayWindow(time.Sunday)
	assert.Nil(t, s)
	assert.Nil(t, e)
}

func TestBusinessHourLocation(t *testing.T) {
	bh := BusinessHour{TimeZone: "Asia/Jakarta"}
	loc := bh.Location()
	assert.Equal(t, "Asia/Jakarta", loc.String())

	bh.TimeZone = ""
	assert.Equal(t, time.UTC, bh.Location())

	bh.TimeZone = "Not/AZone"
	assert.Equal(t, time.UTC, bh.Location())
}
