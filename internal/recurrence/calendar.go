/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recurrence

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_holidays.yaml
var defaultCalendarYAML []byte

// MonthDay is a year-agnostic calendar point.
type MonthDay struct {
	Month int `yaml:"month"`
	Day   int `yaml:"day"`
}

// Holiday is a named month/day window. Windows may wrap the year end.
type Holiday struct {
	Name  string   `yaml:"name"`
	Start MonthDay `yaml:"start"`
	End   MonthDay `yaml:"end"`
}

// Calendar holds the named holiday windows holiday schedules can reference.
type Calendar struct {
	holidays map[string]Holiday
}

type calendarFile struct {
	Holidays []Holiday `yaml:"holidays"`
}

// DefaultCalendar loads the embedded holiday calendar.
func DefaultCalendar() (*Calendar, error) {
	return parseCalendar(defaultCalendarYAML)
}

// LoadCalendar reads a calendar from path, or the embedded default when path
// is empty.
func LoadCalendar(path string) (*Calendar, error) {
	if path == "" {
		return DefaultCalendar()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday calendar: %w", err)
	}
	return parseCalendar(data)
}

func parseCalendar(data []byte) (*Calendar, error) {
	var file calendarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse holiday calendar: %w", err)
	}

	cal := &Calendar{holidays: make(map[string]Holiday, len(file.Holidays))}
	for _, h := range file.Holidays {
		if h.Name == "" {
			return nil, fmt.Errorf("holiday calendar entry without a name")
		}
		if err := validateMonthDay(h.Start.Month, h.Start.Day); err != nil {
			return nil, fmt.Errorf("holiday %q start: %w", h.Name, err)
		}
		if err := validateMonthDay(h.End.Month, h.End.Day); err != nil {
			return nil, fmt.Errorf("holiday %q end: %w", h.Name, err)
		}
		cal.holidays[strings.ToLower(h.Name)] = h
	}
	return cal, nil
}

// Lookup finds a holiday by case-insensitive name.
func (c *Calendar) Lookup(name string) (Holiday, bool) {
	h, ok := c.holidays[strings.ToLower(name)]
	return h, ok
}

// Names returns the known holiday names.
func (c *Calendar) Names() []string {
	names := make([]string, 0, len(c.holidays))
	for _, h := range c.holidays {
		names = append(names, h.Name)
	}
	return names
}
