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

// Package expr holds the small, unresolved logical-expression AST that a
// LogicalGapFill node refers to before physical planning resolves it
// against a concrete schema. It intentionally only models what gap-fill
// ever needs to say about its inputs: a reference to a column the child
// produces, or a constant (the stride, or a range endpoint).
package expr

import "fmt"

// A Node is a logical expression. GapFill never needs to evaluate a Node
// itself -- it only needs to name child columns and carry constants through
// to physical planning, so the AST is deliberately tiny compared to a
// general-purpose SQL expression tree.
type Node interface {
	fmt.Stringer

	// Equals reports whether n and x are the same expression.
	Equals(x Node) bool
}

// Column is a reference to a column of the child's output schema, resolved
// by name (logical plans do not know column positions).
type Column struct {
	Name string
}

// String implements fmt.Stringer.
func (c Column) String() string { return c.Name }

// Equals implements Node.
func (c Column) Equals(x Node) bool {
	c2, ok := x.(Column)
	return ok && c == c2
}

// Literal is a constant value, such as a stride duration or a range
// endpoint timestamp. Values are constant-folded by the (out of scope)
// optimizer before a LogicalGapFill node is constructed.
type Literal struct {
	Value any
}

// String implements fmt.Stringer.
func (l Literal) String() string {
	return fmt.Sprintf("%v", l.Value)
}

// Equals implements Node.
func (l Literal) Equals(x Node) bool {
	l2, ok := x.(Literal)
	return ok && l.Value == l2.Value
}

// Equal is a nil-safe wrapper around Node.Equals, mirroring
// SnellerInc-sneller/expr.Equal.
func Equal(a, b Node) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && a.Equals(b)
}

// Binding pairs a result name with the expression that produces it. It is
// used for the group-by/aggregate expression lists in LogicalGapFill,
// mirroring expr.Binding in SnellerInc-sneller/expr/node.go.
type Binding struct {
	Expr   Node
	Result string
}

// String implements fmt.Stringer.
func (b Binding) String() string {
	if b.Result == "" || b.Result == b.Expr.String() {
		return b.Expr.String()
	}
	return fmt.Sprintf("%s AS %s", b.Expr, b.Result)
}

// Equals reports whether b and b2 are the same binding.
func (b Binding) Equals(b2 Binding) bool {
	return b.Result == b2.Result && b.Expr.Equals(b2.Expr)
}
