// Package calendar buckets stored files into days of a month.
//
// A file's effective date is its capture date when one is recorded and its
// upload time otherwise. What happens when the recorded capture date does not
// parse is decided by the Policy.
package calendar

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/PhotoShare/internal/models"
)

const takenDateLayout = "2006-01-02"

var (
	ErrInvalidMonth  = errors.New("month must be between 1 and 12")
	ErrMalformedDate = errors.New("malformed taken_date")
)

// MalformedDateError identifies the file whose taken_date failed to parse.
type MalformedDateError struct {
	Filename  string
	TakenDate string
	Err       error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("%s: %q: %v", e.Filename, e.TakenDate, e.Err)
}

func (e *MalformedDateError) Unwrap() []error {
	return []error{ErrMalformedDate, e.Err}
}

type Policy string

const (
	// PolicyStrict fails the whole summary on a malformed taken_date.
	PolicyStrict Policy = "strict"
	// PolicyLenient logs the file and falls back to its upload time.
	PolicyLenient Policy = "lenient"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, PolicyLenient:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown date policy %q", s)
}

type Aggregator struct {
	policy Policy
	logger *zap.Logger
}

func New(policy Policy, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = PolicyLenient
	}
	return &Aggregator{policy: policy, logger: logger}
}

// Summarize counts files whose effective date falls in year/month.
func (a *Aggregator) Summarize(files []models.FileRecord, year, month int) (models.CalendarMonthSummary, error) {
	if month < 1 || month > 12 {
		return models.CalendarMonthSummary{}, fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}

	counts := make(models.DayCounter)
	for _, f := range files {
		date, err := a.effectiveDate(f)
		if err != nil {
			return models.CalendarMonthSummary{}, err
		}
		if date.Year() == year && int(date.Month()) == month {
			counts[date.Day()]++
		}
	}

	days := lo.Keys(map[int]int(counts))
	slices.Sort(days)

	return models.CalendarMonthSummary{
		Year:       year,
		Month:      month,
		Days:       days,
		CountByDay: counts,
	}, nil
}

func (a *Aggregator) effectiveDate(f models.FileRecord) (time.Time, error) {
	if f.TakenDate == nil {
		return f.UploadedAt, nil
	}

	taken, err := time.Parse(takenDateLayout, *f.TakenDate)
	if err == nil {
		return taken, nil
	}

	if a.policy == PolicyStrict {
		return time.Time{}, &MalformedDateError{Filename: f.Filename, TakenDate: *f.TakenDate, Err: err}
	}

	a.logger.Warn("malformed taken_date, using upload time",
		zap.String("filename", f.Filename),
		zap.String("taken_date", *f.TakenDate),
		zap.Error(err),
	)
	return f.UploadedAt, nil
}
