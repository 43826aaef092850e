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

package plan

import "errors"

var (
	// ErrInternal marks a condition the planner considers a bug rather than
	// a user error: a GapFill node whose time column is not one of its
	// group-by columns, or WithNewChildren called with != 1 child.
	// Mirrors DataFusion's internal_err! in iox_query/src/exec/gapfill.rs.
	ErrInternal = errors.New("plan: internal error")

	// ErrNotImplemented marks a logically valid plan that this planner does
	// not yet know how to lower, e.g. a range endpoint that did not
	// constant-fold to a concrete timestamp.
	ErrNotImplemented = errors.New("plan: not implemented")
)
