// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"fmt"
	"time"

	"github.com/damageboy/influxdb/date"
)

// Stride is the resolved (constant-folded) bucket width: either a uniform
// nanosecond count or a calendar interval. See spec.md §3 "Stride" and §9
// "Calendar arithmetic".
type Stride struct {
	// Nanos is the bucket width in nanoseconds, used when Calendar is nil.
	Nanos int64
	// Calendar, when non-nil, overrides Nanos with calendar-aware bucket
	// arithmetic (e.g. one month), per date.CalendarInterval.Advance.
	Calendar *date.CalendarInterval
}

func (s Stride) String() string {
	if s.Calendar != nil {
		return fmt.Sprintf("%d calendar unit(s)", s.Calendar.Count)
	}
	return time.Duration(s.Nanos).String()
}

// Advance returns the next bucket boundary after t.
func (s Stride) Advance(t time.Time) time.Time {
	if s.Calendar != nil {
		return s.Calendar.Advance(t)
	}
	return t.Add(time.Duration(s.Nanos))
}

// AlignUp returns the smallest bucket boundary, aligned to origin, that is
// greater than or equal to t.
func (s Stride) AlignUp(origin, t time.Time) time.Time {
	if s.Calendar != nil {
		if t.Before(origin) {
			b := origin
			for {
				prev := s.Calendar.Retreat(b)
				if prev.Before(t) {
					return b
				}
				b = prev
			}
		}
		b := origin
		for b.Before(t) {
			b = s.Calendar.Advance(b)
		}
		return b
	}
	delta := t.Sub(origin).Nanoseconds()
	q := delta / s.Nanos
	if delta%s.Nanos != 0 && delta > 0 {
		q++
	}
	return origin.Add(time.Duration(q * s.Nanos))
}

// AlignDown returns the largest bucket boundary, aligned to origin, that is
// less than or equal to t.
func (s Stride) AlignDown(origin, t time.Time) time.Time {
	if s.Calendar != nil {
		if t.Before(origin) {
			b := origin
			for b.After(t) {
				b = s.Calendar.Retreat(b)
			}
			return b
		}
		b := origin
		next := s.Calendar.Advance(b)
		for !next.After(t) {
			b = next
			next = s.Calendar.Advance(b)
		}
		return b
	}
	delta := t.Sub(origin).Nanoseconds()
	q := delta / s.Nanos
	if delta%s.Nanos != 0 && delta < 0 {
		q--
	}
	return origin.Add(time.Duration(q * s.Nanos))
}

// Retreat returns the bucket boundary immediately preceding t (which must
// itself be aligned to origin).
func (s Stride) Retreat(origin, t time.Time) time.Time {
	return s.AlignDown(origin, t.Add(-time.Nanosecond))
}

// Aligned reports whether t falls exactly on a bucket boundary.
func (s Stride) Aligned(origin, t time.Time) bool {
	return s.AlignUp(origin, t).Equal(t)
}
