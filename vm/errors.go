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

import "errors"

var (
	// ErrOutOfOrder is returned by GapFillStream when an in-range input row's
	// time precedes the previous row of the same series (an exact duplicate
	// of the previous bucket is allowed). Series keys are not compared for
	// order: a series key that sorts before the previous one is not detected.
	ErrOutOfOrder = errors.New("vm: gap-fill input violates required sort order")

	// ErrBadPartition is returned by Execute for any partition other than 0.
	ErrBadPartition = errors.New("vm: gap-fill only supports partition 0")
)
