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

import "time"

// BoundedRange is the resolved [Lo, Hi] time range of the bucket grid. By the
// time a range reaches the streaming engine both endpoints must already be
// concrete timestamps: an Unbounded endpoint is rejected during physical
// planning (see plan.LowerGapFill), so this type has no Unbounded variant.
type BoundedRange struct {
	Lo         time.Time
	LoIncluded bool
	Hi         time.Time
	HiIncluded bool
}

// LoBucket returns the first aligned bucket boundary inside the range.
func (s Stride) LoBucket(origin time.Time, r BoundedRange) time.Time {
	b := s.AlignUp(origin, r.Lo)
	if !r.LoIncluded && b.Equal(r.Lo) {
		b = s.AlignUp(origin, r.Lo.Add(time.Nanosecond))
	}
	return b
}

// HiBucket returns the last aligned bucket boundary inside the range.
func (s Stride) HiBucket(origin time.Time, r BoundedRange) time.Time {
	b := s.AlignDown(origin, r.Hi)
	if !r.HiIncluded && b.Equal(r.Hi) {
		b = s.AlignDown(origin, r.Hi.Add(-time.Nanosecond))
	}
	return b
}
