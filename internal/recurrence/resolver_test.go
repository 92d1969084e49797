package recurrence

import (
	"testing"
	"time"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"github.com/rs/zerolog"
)

func datePtr(t time.Time) *time.Time { return &t }

func localDate(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.Local)
}

func TestCustomScheduleDateRange(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:        "custom-1",
		Type:      models.ScheduleCustom,
		StartDate: datePtr(localDate(2026, time.March, 1, 0, 0)),
		EndDate:   datePtr(localDate(2026, time.March, 10, 0, 0)),
	}

	tests := []struct {
		name   string
		now    time.Time
		active bool
	}{
		{"before start", localDate(2026, time.February, 28, 12, 0), false},
		{"on start day", localDate(2026, time.March, 1, 0, 30), true},
		{"mid range", localDate(2026, time.March, 5, 18, 0), true},
		{"end day inclusive", localDate(2026, time.March, 10, 23, 0), true},
		{"after end", localDate(2026, time.March, 11, 0, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsActive(sched, tt.now); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestOpenEndedCustomSchedule(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:        "custom-open",
		Type:      models.ScheduleCustom,
		StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)),
	}

	if !r.IsActive(sched, localDate(2030, time.June, 15, 9, 0)) {
		t.Fatal("open-ended schedule should stay active indefinitely")
	}
}

func TestOvernightTimeWindow(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:        "overnight",
		Type:      models.ScheduleDaily,
		StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)),
		StartTime: "22:00",
		EndTime:   "03:00",
	}

	tests := []struct {
		name   string
		now    time.Time
		active bool
	}{
		{"late evening inside", localDate(2026, time.May, 3, 23, 15), true},
		{"just after midnight", localDate(2026, time.May, 4, 1, 0), true},
		{"boundary start", localDate(2026, time.May, 3, 22, 0), true},
		{"boundary end excluded", localDate(2026, time.May, 4, 3, 0), false},
		{"afternoon outside", localDate(2026, time.May, 3, 15, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsActive(sched, tt.now); got != tt.active {
				t.Errorf("IsActive(%s) = %v, want %v", tt.now, got, tt.active)
			}
		})
	}
}

func TestYearlyWrapAroundNewYear(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:         "yearly-wrap",
		Type:       models.ScheduleYearly,
		StartMonth: 12, StartDay: 20,
		EndMonth: 1, EndDay: 5,
	}

	tests := []struct {
		name   string
		now    time.Time
		active bool
	}{
		{"christmas", localDate(2026, time.December, 25, 12, 0), true},
		{"january tail", localDate(2027, time.January, 2, 8, 0), true},
		{"june off", localDate(2026, time.June, 1, 12, 0), false},
		{"different year still matches", localDate(2031, time.December, 21, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsActive(sched, tt.now); got != tt.active {
				t.Errorf("IsActive(%s) = %v, want %v", tt.now, got, tt.active)
			}
		})
	}
}

func TestWeeklySchedule(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:        "weekly-1",
		Type:      models.ScheduleWeekly,
		StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)),
		Weekdays:  models.WeekdayFriday | models.WeekdaySaturday,
	}

	// 2026-08-28 is a Friday, 2026-08-31 a Monday.
	if !r.IsActive(sched, localDate(2026, time.August, 28, 20, 0)) {
		t.Error("expected active on Friday")
	}
	if r.IsActive(sched, localDate(2026, time.August, 31, 20, 0)) {
		t.Error("expected inactive on Monday")
	}
}

func TestWeeklyWithoutWeekdaysIsInactive(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:        "weekly-bad",
		Type:      models.ScheduleWeekly,
		StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)),
	}

	if r.IsActive(sched, localDate(2026, time.August, 28, 20, 0)) {
		t.Fatal("weekly schedule without weekdays must be inactive")
	}
	if err := r.Validate(sched); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMonthlyDayWindow(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:            "monthly-1",
		Type:          models.ScheduleMonthly,
		MonthDayStart: 1,
		MonthDayEnd:   7,
	}

	if !r.IsActive(sched, localDate(2026, time.April, 3, 12, 0)) {
		t.Error("expected active inside day window")
	}
	if r.IsActive(sched, localDate(2026, time.April, 15, 12, 0)) {
		t.Error("expected inactive outside day window")
	}

	wrap := &models.Schedule{
		ID:            "monthly-wrap",
		Type:          models.ScheduleMonthly,
		MonthDayStart: 28,
		MonthDayEnd:   3,
	}
	if !r.IsActive(wrap, localDate(2026, time.April, 2, 12, 0)) {
		t.Error("expected month-end wrap window to cover early days")
	}
	if r.IsActive(wrap, localDate(2026, time.April, 15, 12, 0)) {
		t.Error("expected mid-month to be outside wrap window")
	}
}

func TestHolidayScheduleFromCalendar(t *testing.T) {
	cal, err := DefaultCalendar()
	if err != nil {
		t.Fatalf("load default calendar: %v", err)
	}
	r := NewResolver(cal, zerolog.Nop())

	sched := &models.Schedule{
		ID:          "holiday-1",
		Type:        models.ScheduleHoliday,
		HolidayName: "halloween",
	}

	if !r.IsActive(sched, localDate(2026, time.October, 20, 19, 0)) {
		t.Error("expected halloween window active in October")
	}
	if r.IsActive(sched, localDate(2026, time.November, 2, 19, 0)) {
		t.Error("expected halloween window inactive in November")
	}
}

func TestUnknownHolidayIsInactive(t *testing.T) {
	cal, err := DefaultCalendar()
	if err != nil {
		t.Fatalf("load default calendar: %v", err)
	}
	r := NewResolver(cal, zerolog.Nop())

	sched := &models.Schedule{
		ID:          "holiday-bad",
		Type:        models.ScheduleHoliday,
		HolidayName: "festivus",
	}

	if r.IsActive(sched, localDate(2026, time.December, 23, 12, 0)) {
		t.Fatal("unknown holiday must resolve inactive, not crash")
	}
}

func TestMalformedScheduleNeverPanics(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	bad := []*models.Schedule{
		{ID: "b1", Type: models.ScheduleCustom}, // no start date
		{ID: "b2", Type: models.ScheduleYearly, StartMonth: 13, StartDay: 1, EndMonth: 1, EndDay: 1},
		{ID: "b3", Type: models.ScheduleDaily, StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)), StartTime: "25:00", EndTime: "03:00"},
		{ID: "b4", Type: models.ScheduleDaily, StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)), StartTime: "10:00"},
		{ID: "b5", Type: "fortnightly"},
		{ID: "b6", Type: models.ScheduleCustom,
			StartDate: datePtr(localDate(2026, time.March, 10, 0, 0)),
			EndDate:   datePtr(localDate(2026, time.March, 1, 0, 0))},
	}

	for _, sched := range bad {
		if r.IsActive(sched, localDate(2026, time.June, 1, 12, 0)) {
			t.Errorf("schedule %s: malformed schedule reported active", sched.ID)
		}
	}
}

func TestNextTransitionTimeWindow(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:        "transition-1",
		Type:      models.ScheduleDaily,
		StartDate: datePtr(localDate(2026, time.January, 1, 0, 0)),
		StartTime: "18:00",
		EndTime:   "22:00",
	}

	now := localDate(2026, time.May, 3, 12, 0)
	next, ok := r.NextTransition(sched, now)
	if !ok {
		t.Fatal("expected a next transition")
	}
	want := localDate(2026, time.May, 3, 18, 0)
	if !next.Equal(want) {
		t.Fatalf("next transition = %s, want %s", next, want)
	}
}

func TestNextTransitionYearly(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	sched := &models.Schedule{
		ID:         "transition-yearly",
		Type:       models.ScheduleYearly,
		StartMonth: 10, StartDay: 1,
		EndMonth: 10, EndDay: 31,
	}

	now := localDate(2026, time.September, 15, 12, 0)
	next, ok := r.NextTransition(sched, now)
	if !ok {
		t.Fatal("expected a next transition")
	}
	want := localDate(2026, time.October, 1, 0, 0)
	if !next.Equal(want) {
		t.Fatalf("next transition = %s, want %s", next, want)
	}
}
