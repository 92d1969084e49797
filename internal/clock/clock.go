/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock is the single boundary where wall-clock "now" is read.
// Schedules store naive local values; every recurrence comparison happens in
// the server's configured location, sampled exactly once per tick. Nothing
// downstream re-derives timezone-sensitive fields.
package clock

import (
	"time"
)

// Clock yields the current local wall-clock time.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// System reads the OS clock in a fixed location.
type System struct {
	loc *time.Location
}

// NewSystem creates a system clock bound to the named timezone. An empty or
// invalid name falls back to the host's local zone.
func NewSystem(tzName string) (*System, error) {
	if tzName == "" {
		return &System{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, err
	}
	return &System{loc: loc}, nil
}

// Now returns the current instant in the configured location.
func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

// Location returns the configured location.
func (s *System) Location() *time.Location {
	return s.loc
}

// Fixed is a clock pinned to one instant, for tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time           { return f.T }
func (f Fixed) Location() *time.Location { return f.T.Location() }
