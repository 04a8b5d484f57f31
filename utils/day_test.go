package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeToDay_Epoch(t *testing.T) {
	assert.Equal(t, int64(0), TimeToDay(time.Unix(0, 0)))
	assert.Equal(t, int64(0), TimeToDay(time.Unix(86399, 0)))
	assert.Equal(t, int64(1), TimeToDay(time.Unix(86400, 0)))
}

func TestTimeToDay_IgnoresLocalZone(t *testing.T) {
	// Same instant expressed in two zones must land on the same UTC day.
	loc := time.FixedZone("UTC+13", 13*3600)
	instant := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, TimeToDay(instant), TimeToDay(instant.In(loc)))
}

func TestDayToDate_RoundTrip(t *testing.T) {
	day := TimeToDay(time.Date(2025, 6, 1, 15, 4, 5, 0, time.UTC))
	date := DayToDate(day)

	assert.Equal(t, time.June, date.Month())
	assert.Equal(t, 1, date.Day())
	assert.Equal(t, 0, date.Hour())
	assert.Equal(t, day, TimeToDay(date))
}
