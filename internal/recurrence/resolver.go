/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recurrence decides whether a schedule is active at a wall-clock
// instant and when it will next change state. All comparisons happen in the
// caller's local time; stored dates are naive and are rebased into the
// caller's location, never converted through UTC.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/rs/zerolog"
)

// ErrConfig indicates a malformed schedule. Malformed schedules are treated
// as permanently inactive, never fatal.
var ErrConfig = errors.New("invalid schedule configuration")

// Resolver evaluates schedule recurrence rules.
type Resolver struct {
	calendar *Calendar
	logger   zerolog.Logger

	warnMu sync.Mutex
	warned map[string]struct{}
}

// NewResolver creates a recurrence resolver. The calendar may be nil when no
// holiday schedules exist.
func NewResolver(calendar *Calendar, logger zerolog.Logger) *Resolver {
	return &Resolver{
		calendar: calendar,
		logger:   logger,
		warned:   make(map[string]struct{}),
	}
}

// IsActive reports whether the schedule is active at now. A schedule that
// fails validation is inactive; the failure is logged once per schedule.
func (r *Resolver) IsActive(s *models.Schedule, now time.Time) bool {
	active, err := r.evaluate(s, now)
	if err != nil {
		r.warnOnce(s, err)
		return false
	}
	return active
}

// Validate checks the schedule's stored fields without evaluating it.
func (r *Resolver) Validate(s *models.Schedule) error {
	_, err := r.evaluate(s, time.Now())
	return err
}

func (r *Resolver) evaluate(s *models.Schedule, now time.Time) (bool, error) {
	window, err := parseTimeWindow(s.StartTime, s.EndTime)
	if err != nil {
		return false, err
	}

	switch s.Type {
	case models.ScheduleCustom:
		return r.evalDateRange(s, now, window, false)
	case models.ScheduleDaily:
		return r.evalDateRange(s, now, window, false)
	case models.ScheduleWeekly:
		if s.Weekdays == 0 {
			return false, fmt.Errorf("%w: weekly schedule %s selects no weekdays", ErrConfig, s.ID)
		}
		return r.evalDateRange(s, now, window, true)
	case models.ScheduleMonthly:
		return r.evalMonthly(s, now, window)
	case models.ScheduleYearly:
		return r.evalMonthDay(s, now, s.StartMonth, s.StartDay, s.EndMonth, s.EndDay)
	case models.ScheduleHoliday:
		return r.evalHoliday(s, now)
	default:
		return false, fmt.Errorf("%w: unknown schedule type %q", ErrConfig, s.Type)
	}
}

func (r *Resolver) evalDateRange(s *models.Schedule, now time.Time, window *timeWindow, checkWeekday bool) (bool, error) {
	if s.StartDate == nil {
		return false, fmt.Errorf("%w: schedule %s has no start date", ErrConfig, s.ID)
	}

	start := rebase(*s.StartDate, now.Location())
	if now.Before(start) {
		return false, nil
	}

	if s.EndDate != nil {
		end := rebase(*s.EndDate, now.Location())
		if end.Before(start) {
			return false, fmt.Errorf("%w: schedule %s ends before it starts", ErrConfig, s.ID)
		}
		// End date without a time component means "through the end of that day".
		if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
			end = end.AddDate(0, 0, 1)
		}
		if !now.Before(end) {
			return false, nil
		}
	}

	if checkWeekday && !s.HasWeekday(now.Weekday()) {
		return false, nil
	}

	return window.contains(now), nil
}

func (r *Resolver) evalMonthly(s *models.Schedule, now time.Time, window *timeWindow) (bool, error) {
	startDay, endDay := s.MonthDayStart, s.MonthDayEnd
	if startDay < 1 || startDay > 31 || endDay < 1 || endDay > 31 {
		return false, fmt.Errorf("%w: schedule %s has day-of-month window %d..%d", ErrConfig, s.ID, startDay, endDay)
	}

	day := now.Day()
	var inWindow bool
	if endDay < startDay {
		// Window wraps the end of the month, e.g. 28..3.
		inWindow = day >= startDay || day <= endDay
	} else {
		inWindow = day >= startDay && day <= endDay
	}
	if !inWindow {
		return false, nil
	}
	return window.contains(now), nil
}

func (r *Resolver) evalMonthDay(s *models.Schedule, now time.Time, sm, sd, em, ed int) (bool, error) {
	if err := validateMonthDay(sm, sd); err != nil {
		return false, fmt.Errorf("%w: schedule %s start: %v", ErrConfig, s.ID, err)
	}
	if err := validateMonthDay(em, ed); err != nil {
		return false, fmt.Errorf("%w: schedule %s end: %v", ErrConfig, s.ID, err)
	}

	md := int(now.Month())*100 + now.Day()
	startKey := sm*100 + sd
	endKey := em*100 + ed

	if endKey < startKey {
		// Range crosses Dec 31 -> Jan 1.
		return md >= startKey || md <= endKey, nil
	}
	return md >= startKey && md <= endKey, nil
}

func (r *Resolver) evalHoliday(s *models.Schedule, now time.Time) (bool, error) {
	sm, sd, em, ed := s.StartMonth, s.StartDay, s.EndMonth, s.EndDay

	if s.HolidayName != "" {
		if r.calendar == nil {
			return false, fmt.Errorf("%w: schedule %s names holiday %q but no calendar is loaded", ErrConfig, s.ID, s.HolidayName)
		}
		h, ok := r.calendar.Lookup(s.HolidayName)
		if !ok {
			return false, fmt.Errorf("%w: schedule %s names unknown holiday %q", ErrConfig, s.ID, s.HolidayName)
		}
		sm, sd, em, ed = h.Start.Month, h.Start.Day, h.End.Month, h.End.Day
	}

	return r.evalMonthDay(s, now, sm, sd, em, ed)
}

// NextTransition returns the next instant at which the schedule's active
// state may change. ok is false when no future transition exists (for
// example a custom schedule entirely in the past).
func (r *Resolver) NextTransition(s *models.Schedule, now time.Time) (time.Time, bool) {
	candidates := r.transitionCandidates(s, now)

	var best time.Time
	found := false
	for _, c := range candidates {
		if !c.After(now) {
			continue
		}
		if !found || c.Before(best) {
			best = c
			found = true
		}
	}
	return best, found
}

func (r *Resolver) transitionCandidates(s *models.Schedule, now time.Time) []time.Time {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var out []time.Time

	// Time-of-day window boundaries for today and tomorrow.
	if window, err := parseTimeWindow(s.StartTime, s.EndTime); err == nil && window != nil {
		for dayOffset := 0; dayOffset <= 1; dayOffset++ {
			base := midnight.AddDate(0, 0, dayOffset)
			out = append(out,
				base.Add(time.Duration(window.startMin)*time.Minute),
				base.Add(time.Duration(window.endMin)*time.Minute),
			)
		}
	}

	switch s.Type {
	case models.ScheduleCustom, models.ScheduleDaily, models.ScheduleWeekly:
		if s.StartDate != nil {
			out = append(out, rebase(*s.StartDate, loc))
		}
		if s.EndDate != nil {
			end := rebase(*s.EndDate, loc)
			if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
				end = end.AddDate(0, 0, 1)
			}
			out = append(out, end)
		}
		out = append(out, midnight.AddDate(0, 0, 1))
	case models.ScheduleMonthly:
		for monthOffset := 0; monthOffset <= 1; monthOffset++ {
			base := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, monthOffset, 0)
			if s.MonthDayStart >= 1 {
				out = append(out, base.AddDate(0, 0, s.MonthDayStart-1))
			}
			if s.MonthDayEnd >= 1 {
				out = append(out, base.AddDate(0, 0, s.MonthDayEnd))
			}
		}
	case models.ScheduleYearly, models.ScheduleHoliday:
		sm, sd, em, ed := s.StartMonth, s.StartDay, s.EndMonth, s.EndDay
		if s.Type == models.ScheduleHoliday && s.HolidayName != "" && r.calendar != nil {
			if h, ok := r.calendar.Lookup(s.HolidayName); ok {
				sm, sd, em, ed = h.Start.Month, h.Start.Day, h.End.Month, h.End.Day
			}
		}
		for yearOffset := 0; yearOffset <= 1; yearOffset++ {
			year := now.Year() + yearOffset
			if validateMonthDay(sm, sd) == nil {
				out = append(out, time.Date(year, time.Month(sm), sd, 0, 0, 0, 0, loc))
			}
			if validateMonthDay(em, ed) == nil {
				out = append(out, time.Date(year, time.Month(em), ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1))
			}
		}
	}

	return out
}

func (r *Resolver) warnOnce(s *models.Schedule, err error) {
	r.warnMu.Lock()
	_, seen := r.warned[s.ID]
	if !seen {
		r.warned[s.ID] = struct{}{}
	}
	r.warnMu.Unlock()

	if seen {
		return
	}
	r.logger.Warn().
		Str("schedule_id", s.ID).
		Str("schedule", s.Name).
		Err(err).
		Msg("schedule misconfigured, treating as inactive")
}

// rebase reinterprets a stored naive timestamp in the given location without
// shifting its wall-clock fields.
func rebase(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

func validateMonthDay(month, day int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("day %d out of range", day)
	}
	return nil
}

// timeWindow is a [start, end) window in minutes since midnight. end < start
// denotes an overnight window spanning midnight.
type timeWindow struct {
	startMin int
	endMin   int
}

func parseTimeWindow(startStr, endStr string) (*timeWindow, error) {
	if startStr == "" && endStr == "" {
		return nil, nil
	}
	if startStr == "" || endStr == "" {
		return nil, fmt.Errorf("%w: start_time and end_time must be set together", ErrConfig)
	}

	start, err := parseClock(startStr)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time %q: %v", ErrConfig, startStr, err)
	}
	end, err := parseClock(endStr)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time %q: %v", ErrConfig, endStr, err)
	}

	return &timeWindow{startMin: start, endMin: end}, nil
}

// contains reports whether now's time of day falls inside the window. A nil
// window contains everything.
func (w *timeWindow) contains(now time.Time) bool {
	if w == nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	if w.endMin < w.startMin {
		return minute >= w.startMin || minute < w.endMin
	}
	return minute >= w.startMin && minute < w.endMin
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bad hour")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bad minute")
	}
	return hour*60 + minute, nil
}
