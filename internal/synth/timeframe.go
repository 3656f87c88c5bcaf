package synth

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Timeframe is an aggregation granularity selectable on the dashboard.
type Timeframe string

const (
	Hour1  Timeframe = "1H"
	Hour4  Timeframe = "4H"
	Day1   Timeframe = "1D"
	Day7   Timeframe = "7D"
	Month1 Timeframe = "1M"
	Month3 Timeframe = "3M"
	Year1  Timeframe = "1Y"
)

const (
	day      = 24 * time.Hour
	hoursDay = 24.0
)

// ErrUnknownTimeframe is returned by ParseTimeframe.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

type frameSpec struct {
	spanDays     float64
	intervalDays float64
}

var frames = map[Timeframe]frameSpec{
	Hour1:  {spanDays: 2, intervalDays: 1 / hoursDay},
	Hour4:  {spanDays: 7, intervalDays: 4 / hoursDay},
	Day1:   {spanDays: 30, intervalDays: 1},
	Day7:   {spanDays: 90, intervalDays: 7},
	Month1: {spanDays: 365, intervalDays: 30},
	Month3: {spanDays: 730, intervalDays: 91},
	Year1:  {spanDays: 1825, intervalDays: 365},
}

// Timeframes lists every supported timeframe, finest first.
func Timeframes() []Timeframe {
	return []Timeframe{Hour1, Hour4, Day1, Day7, Month1, Month3, Year1}
}

// ParseTimeframe validates a user supplied timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := frames[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Valid reports whether tf is supported.
func (tf Timeframe) Valid() bool {
	_, ok := frames[tf]
	return ok
}

// SpanDays is the total history span covered by the timeframe.
func (tf Timeframe) SpanDays() float64 {
	return frames[tf].spanDays
}

// IntervalDays is the bucket width, possibly a fraction of a day.
func (tf Timeframe) IntervalDays() float64 {
	return frames[tf].intervalDays
}

// Interval is the bucket width as a duration.
func (tf Timeframe) Interval() time.Duration {
	return time.Duration(math.Round(tf.IntervalDays() * float64(day)))
}

// Points is ceil(span/interval).
func (tf Timeframe) Points() int {
	frame, ok := frames[tf]
	if !ok {
		return 0
	}
	// round before ceil so 2/(1/24) does not become 49 through float error
	ratio := math.Round(frame.spanDays/frame.intervalDays*1e9) / 1e9
	return int(math.Ceil(ratio))
}

// Anchor truncates now onto the timeframe's bucket grid (UTC).
func (tf Timeframe) Anchor(now time.Time) time.Time {
	now = now.UTC()
	if tf.IntervalDays() < 1 {
		return now.Truncate(tf.Interval())
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
