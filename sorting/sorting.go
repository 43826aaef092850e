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

// Package sorting holds the sort-direction vocabulary shared by the
// physical planner's required/output ordering and the streaming engine.
// Adapted from SnellerInc-sneller/sorting/types.go; the rest of that
// package (the multi-column merge-sort engine) belongs to the SortExec
// collaborator spec.md places out of scope, so only the vocabulary types
// are kept here.
package sorting

// Direction encodes a sorting direction of a column (SQL: ASC/DESC).
type Direction int

const (
	Ascending  Direction = 1  // Sort ascending
	Descending Direction = -1 // Sort descending
)

// NullsOrder encodes the relative order of NULL values (SQL: NULLS
// FIRST/NULLS LAST).
type NullsOrder int

const (
	NullsFirst NullsOrder = iota // NULL values sort first
	NullsLast                    // NULL values sort last
)

// Column is one entry of a required or output sort order.
type Column struct {
	Name      string
	Direction Direction
	Nulls     NullsOrder
}
