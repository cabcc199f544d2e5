// Package stats sums CHAUFFEcoin quantities across DLOID records and builds
// the per-owner blockchain summary shown on the profile page.
//
// Aggregation never fails as a whole: a malformed record is skipped and
// reported, and the remaining records still count.
package stats

import (
	"encoding/json"
	"errors"
	"math"
	"math/bits"

	"chauffe/internal/dloid"

	"go.uber.org/zap"
)

// ErrOverflow is the reason recorded when the running total no longer fits.
var ErrOverflow = errors.New("chauffecoin total overflows uint64")

// RecordError describes one record that did not contribute to the total.
type RecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Result is the outcome of an aggregation run.
type Result struct {
	Total   uint64        `json:"total"`
	Counted int           `json:"counted"`
	Skipped int           `json:"skipped"`
	Errors  []RecordError `json:"errors,omitempty"`
	// Overflow is set when the exact total exceeds math.MaxUint64. Total is
	// then saturated at math.MaxUint64 rather than wrapped.
	Overflow bool `json:"overflow,omitempty"`
}

// Aggregate decodes each packed record and sums the quantity field.
func Aggregate(records []string) Result {
	var acc accumulator
	for i, raw := range records {
		f, err := dloid.Decode(raw)
		acc.add(i, f, err)
	}
	return acc.result()
}

// AggregateRaw is Aggregate for JSON values in either DLOID wire form.
func AggregateRaw(records []json.RawMessage) Result {
	var acc accumulator
	for i, raw := range records {
		f, err := dloid.Normalize(raw)
		acc.add(i, f, err)
	}
	return acc.result()
}

// LogSkipped writes one warning per skipped record.
func (r Result) LogSkipped(logger *zap.Logger) {
	for _, e := range r.Errors {
		logger.Warn("Skipped dloid record", zap.Int("index", e.Index), zap.String("reason", e.Reason))
	}
	if r.Overflow {
		logger.Error("CHAUFFEcoin total overflowed; value saturated", zap.Uint64("total", r.Total))
	}
}

type accumulator struct {
	res Result
}

func (a *accumulator) add(index int, f dloid.Fields, err error) {
	if err != nil {
		a.res.Skipped++
		a.res.Errors = append(a.res.Errors, RecordError{Index: index, Reason: err.Error(), Err: err})
		return
	}
	a.res.Counted++
	if a.res.Overflow {
		return
	}
	sum, carry := bits.Add64(a.res.Total, f.Quantity, 0)
	if carry != 0 {
		a.res.Overflow = true
		a.res.Total = math.MaxUint64
		a.res.Errors = append(a.res.Errors, RecordError{Index: index, Reason: ErrOverflow.Error(), Err: ErrOverflow})
		return
	}
	a.res.Total = sum
}

func (a *accumulator) result() Result {
	return a.res
}
