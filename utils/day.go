// utils/day.go
package utils

import "time"

// SecondsPerDay anchors the UTC day index: day N covers
// [N*86400, (N+1)*86400) in unix seconds.
const SecondsPerDay = 86400

// CurrentDay returns the UTC day index for "now".
func CurrentDay() int64 {
	return TimeToDay(time.Now())
}

// TimeToDay converts a wall-clock instant to its UTC day index.
func TimeToDay(t time.Time) int64 {
	return t.UTC().Unix() / SecondsPerDay
}

// DayToDate returns UTC midnight of the given day index.
func DayToDate(day int64) time.Time {
	return time.Unix(day*SecondsPerDay, 0).UTC()
}
