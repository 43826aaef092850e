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

// Package pir holds the logical query-plan node tree. GapFill is the one
// node this module adds to it; the rest of the logical layer (table scans,
// filters, joins, ...) is out of scope per spec.md's Non-goals and is
// represented here only by the minimal Step contract GapFill must satisfy.
package pir

import (
	"fmt"
	"io"

	"golang.org/x/exp/slices"

	"github.com/damageboy/influxdb/expr"
	"github.com/damageboy/influxdb/vm"
)

// Step is the logical-plan node contract, adapted from
// SnellerInc-sneller/plan/pir.Step to this module's minimal expr vocabulary.
type Step interface {
	Parent() Step
	SetParent(Step)
	Describe(dst io.Writer)
	Rewrite(rw func(expr.Node) expr.Node)
	Equals(Step) bool
}

// parented is the embeddable single-input-node helper, adapted from
// SnellerInc-sneller/plan/pir.parented.
type parented struct {
	par Step
}

func (p *parented) Parent() Step     { return p.par }
func (p *parented) SetParent(s Step) { p.par = s }

// Range describes a resolved (but not yet evaluated) [lo, hi) time bound
// over the GapFill node's time column. One or both bounds may be absent
// (Unbounded), in which case physical planning rejects the plan: spec.md §2
// requires both endpoints to be statically resolvable.
type Range struct {
	Lo, Hi Endpoint
}

// EndpointKind classifies one bound of a Range.
type EndpointKind int

const (
	Unbounded EndpointKind = iota
	Included
	Excluded
)

// Endpoint is one bound of a Range: either unbounded, or a logical
// expression (normally a literal timestamp) paired with its inclusivity.
type Endpoint struct {
	Kind EndpointKind
	Expr expr.Node
}

func (e Endpoint) equals(o Endpoint) bool {
	if e.Kind != o.Kind {
		return false
	}
	if e.Kind == Unbounded {
		return true
	}
	return expr.Equal(e.Expr, o.Expr)
}

func (r Range) equals(o Range) bool {
	return r.Lo.equals(o.Lo) && r.Hi.equals(o.Hi)
}

func (e Endpoint) String() string {
	switch e.Kind {
	case Unbounded:
		return "unbounded"
	case Excluded:
		return fmt.Sprintf("excl(%s)", e.Expr)
	default:
		return e.Expr.String()
	}
}

// GapFill is the logical node described in spec.md §2 "LogicalGapFill": it
// densifies the pre-aggregated output of its single input along an evenly
// (or calendar-)spaced time grid, inserting NULL-filled rows for buckets the
// input skips.
//
// Grounded on SnellerInc-sneller/plan/pir.Aggregate and .Order for the
// parented/equals/describe/rewrite pattern, and on the original
// iox_query/src/exec/gapfill.rs GapFill struct for the field shape and the
// exact display-string format.
type GapFill struct {
	parented

	// GroupBy is G: the group-by expressions, including the time column,
	// in their original (schema) order.
	GroupBy []expr.Binding
	// TimeColumn names the member of GroupBy that is the time dimension.
	TimeColumn string
	// Aggregate is A: the already-computed aggregate columns.
	Aggregate []expr.Binding

	Stride Stride
	Range  Range
}

// Stride is the logical (unresolved) bucket width: exactly one of Interval
// or Calendar is set.
type Stride struct {
	// Interval is a literal expression evaluating to a fixed duration
	// (nanoseconds).
	Interval expr.Node
	// Calendar names a non-uniform unit ("month" or "year") with a count
	// expression, e.g. "3 months".
	Calendar     string
	CalendarSize expr.Node
}

func (s Stride) equals(o Stride) bool {
	return s.Calendar == o.Calendar &&
		expr.Equal(s.Interval, o.Interval) &&
		expr.Equal(s.CalendarSize, o.CalendarSize)
}

func (s Stride) String() string {
	if s.Calendar != "" {
		return fmt.Sprintf("%s %s", s.CalendarSize, s.Calendar)
	}
	return s.Interval.String()
}

// Expressions returns G ∥ A: the group-by expressions followed by the
// aggregate expressions, concatenated in that fixed order. Splitting back
// into G and A at len(g.GroupBy) is exact, per spec.md §2.
func (g *GapFill) Expressions() []expr.Binding {
	out := make([]expr.Binding, 0, len(g.GroupBy)+len(g.Aggregate))
	out = append(out, g.GroupBy...)
	out = append(out, g.Aggregate...)
	return out
}

// WithExpressions returns a clone of g with GroupBy and Aggregate replaced
// by splitting exprs at the same point the original G/A boundary occupied.
// All other fields (TimeColumn, Stride, Range, input) are carried over
// unchanged.
func (g *GapFill) WithExpressions(exprs []expr.Binding) (*GapFill, error) {
	if len(exprs) != len(g.GroupBy)+len(g.Aggregate) {
		return nil, fmt.Errorf("pir: GapFill.WithExpressions: got %d expressions, want %d", len(exprs), len(g.GroupBy)+len(g.Aggregate))
	}
	n := len(g.GroupBy)
	g2 := &GapFill{
		GroupBy:    append([]expr.Binding(nil), exprs[:n]...),
		Aggregate:  append([]expr.Binding(nil), exprs[n:]...),
		TimeColumn: g.TimeColumn,
		Stride:     g.Stride,
		Range:      g.Range,
	}
	g2.SetParent(g.Parent())
	return g2, nil
}

// WithNewChild returns a clone of g with its single input replaced by
// child, per spec.md §2 "accepts exactly one new child".
func (g *GapFill) WithNewChild(child Step) *GapFill {
	g2 := *g
	g2.parented = parented{}
	g2.SetParent(child)
	return &g2
}

func (g *GapFill) Equals(x Step) bool {
	g2, ok := x.(*GapFill)
	if !ok {
		return false
	}
	if g == g2 {
		return true
	}
	if g.TimeColumn != g2.TimeColumn || !g.Stride.equals(g2.Stride) || !g.Range.equals(g2.Range) {
		return false
	}
	return slices.EqualFunc(g.GroupBy, g2.GroupBy, expr.Binding.Equals) &&
		slices.EqualFunc(g.Aggregate, g2.Aggregate, expr.Binding.Equals)
}

// Rewrite applies rw to every group-by and aggregate expression, in place.
func (g *GapFill) Rewrite(rw func(expr.Node) expr.Node) {
	for i := range g.GroupBy {
		g.GroupBy[i].Expr = rw(g.GroupBy[i].Expr)
	}
	for i := range g.Aggregate {
		g.Aggregate[i].Expr = rw(g.Aggregate[i].Expr)
	}
}

// Describe writes the node's pinned, single-line display string, matching
// (module-for-module) the format fmt_for_explain produces in
// iox_query/src/exec/gapfill.rs:
//
//	GapFill: groupBy=[...], aggr=[...], time_column=..., stride=..., range=...
func (g *GapFill) Describe(dst io.Writer) {
	fmt.Fprintf(dst, "GapFill: groupBy=%s, aggr=%s, time_column=%s, stride=%s, range=[%s, %s]\n",
		vm.BindingList(g.GroupBy), vm.BindingList(g.Aggregate), g.TimeColumn, g.Stride,
		g.Range.Lo, g.Range.Hi)
}
