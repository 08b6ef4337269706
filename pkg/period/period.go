// Package period decides whether a scheduled payment may execute at a given
// time and which occurrence an execution pays for.
package period

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

const (
	// SecondsPerDay is the length of one validity day
	SecondsPerDay = 86400

	// MaxValidForDays is the longest grace window Check supports. Monthly
	// occurrences are at least 28 days apart, so a window this long closes
	// before the next occurrence starts and Check only needs to look one
	// month back.
	MaxValidForDays = 28

	// maxScanMonths bounds the search for the next window
	maxScanMonths = 1200
)

var (
	// ErrInvalidPeriod is returned when a payment is outside every admissible window
	ErrInvalidPeriod = errors.New("invalid period")

	ErrTooEarly         = fmt.Errorf("%w: too early", ErrInvalidPeriod)
	ErrWindowClosed     = fmt.Errorf("%w: execution window closed", ErrInvalidPeriod)
	ErrAlreadyExecuted  = fmt.Errorf("%w: occurrence already executed", ErrInvalidPeriod)
	ErrPastUntil        = fmt.Errorf("%w: occurrence starts after until", ErrInvalidPeriod)
	ErrMalformedPayment = fmt.Errorf("%w: malformed schedule", ErrInvalidPeriod)
)

// Marker identifies a calendar month, year*12 + month. Zero means never executed.
type Marker uint32

// MarkerOf returns the marker of the month containing ts
func MarkerOf(ts uint64) Marker {
	t := time.Unix(int64(ts), 0).UTC()
	return monthMarker(t.Year(), t.Month())
}

func monthMarker(year int, month time.Month) Marker {
	return Marker(year*12 + int(month))
}

// Outcome describes the occurrence an admitted execution pays for
type Outcome struct {
	Marker Marker
	Start  uint64
	// Final is set when no later occurrence can execute, so the hash is retired
	Final bool
}

// Window is an admissible execution range, both ends inclusive
type Window struct {
	Start  uint64
	End    uint64
	Marker Marker
}

// Contains reports whether ts is inside the window
func (w Window) Contains(ts uint64) bool {
	return ts >= w.Start && ts <= w.End
}

// Check admits or rejects an execution of intent at now.
// last is the marker of the previously executed occurrence.
func Check(intent *models.PaymentIntent, now uint64, validForDays uint64, last Marker) (Outcome, error) {
	grace := graceSeconds(validForDays)

	if !intent.IsRecurring() {
		if now < intent.PayAt {
			return Outcome{}, ErrTooEarly
		}
		if now > saturatingAdd(intent.PayAt, grace) {
			return Outcome{}, ErrWindowClosed
		}
		return Outcome{Marker: MarkerOf(intent.PayAt), Start: intent.PayAt, Final: true}, nil
	}

	if intent.RecursDayOfMonth < 1 || intent.RecursDayOfMonth > 31 {
		return Outcome{}, ErrMalformedPayment
	}

	nowT := time.Unix(int64(now), 0).UTC()
	current := time.Date(nowT.Year(), nowT.Month(), 1, 0, 0, 0, 0, time.UTC)
	previous := current.AddDate(0, -1, 0)

	// The current month is checked first. A grace window long enough to
	// cross the month boundary can still admit the previous occurrence.
	var rejection error
	for i, month := range []time.Time{current, previous} {
		start := occurrenceStart(month.Year(), month.Month(), intent.RecursDayOfMonth)
		if now < start {
			continue
		}
		if now >= saturatingAdd(start, grace) {
			if i == 0 && rejection == nil {
				rejection = ErrWindowClosed
				if start > intent.Until {
					rejection = ErrPastUntil
				}
			}
			continue
		}
		if start > intent.Until {
			rejection = ErrPastUntil
			continue
		}
		marker := monthMarker(month.Year(), month.Month())
		if marker <= last {
			rejection = ErrAlreadyExecuted
			continue
		}

		next := month.AddDate(0, 1, 0)
		nextStart := occurrenceStart(next.Year(), next.Month(), intent.RecursDayOfMonth)
		return Outcome{Marker: marker, Start: start, Final: nextStart > intent.Until}, nil
	}

	if rejection != nil {
		return Outcome{}, rejection
	}
	if occurrenceStart(current.Year(), current.Month(), intent.RecursDayOfMonth) > intent.Until {
		return Outcome{}, ErrPastUntil
	}
	return Outcome{}, ErrTooEarly
}

// NextWindow returns the first admissible window that has not ended by after.
// ok is false when the payment can never execute again.
func NextWindow(intent *models.PaymentIntent, after uint64, validForDays uint64, last Marker) (Window, bool) {
	grace := graceSeconds(validForDays)

	if !intent.IsRecurring() {
		w := Window{Start: intent.PayAt, End: saturatingAdd(intent.PayAt, grace), Marker: MarkerOf(intent.PayAt)}
		if after > w.End {
			return Window{}, false
		}
		return w, true
	}

	if grace == 0 || intent.RecursDayOfMonth < 1 || intent.RecursDayOfMonth > 31 {
		return Window{}, false
	}

	afterT := time.Unix(int64(after), 0).UTC()
	month := time.Date(afterT.Year(), afterT.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	for i := 0; i < maxScanMonths; i++ {
		start := occurrenceStart(month.Year(), month.Month(), intent.RecursDayOfMonth)
		if start > intent.Until {
			return Window{}, false
		}
		w := Window{Start: start, End: saturatingAdd(start, grace) - 1, Marker: monthMarker(month.Year(), month.Month())}
		if w.Marker > last && w.End >= after {
			return w, true
		}
		month = month.AddDate(0, 1, 0)
	}
	return Window{}, false
}

// occurrenceStart is midnight UTC of the payment day, clamped to the month's length
func occurrenceStart(year int, month time.Month, day uint8) uint64 {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	d := int(day)
	if d > lastDay {
		d = lastDay
	}
	return uint64(time.Date(year, month, d, 0, 0, 0, 0, time.UTC).Unix())
}

func graceSeconds(validForDays uint64) uint64 {
	if validForDays > math.MaxUint64/SecondsPerDay {
		return math.MaxUint64
	}
	return validForDays * SecondsPerDay
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
