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

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/damageboy/influxdb/date"
	"github.com/damageboy/influxdb/expr"
	"github.com/damageboy/influxdb/plan/pir"
	"github.com/damageboy/influxdb/sorting"
	"github.com/damageboy/influxdb/vm"
)

// LowerGapFill is the physical-planning bridge from the logical pir.GapFill
// node to the physical plan.GapFill node, adapted from
// SnellerInc-sneller/plan.lowerAggregate's free-function dispatch pattern
// and grounded on plan_gap_fill in iox_query/src/exec/gapfill.rs for what
// gets resolved and in what order: group/aggregate expressions against the
// input schema, the time column by name, then stride and range.
//
// from is the already-lowered physical plan for in's single input; its
// schema is assumed to already equal in's group-by-then-aggregate column
// layout (see vm.Params's doc comment).
func LowerGapFill(in *pir.GapFill, from ExecutionPlan) (ExecutionPlan, error) {
	schema := from.Schema()

	group, err := resolveBindings(in.GroupBy, schema)
	if err != nil {
		return nil, fmt.Errorf("plan: lowering GapFill group-by: %w", err)
	}
	aggregates, err := resolveBindings(in.Aggregate, schema)
	if err != nil {
		return nil, fmt.Errorf("plan: lowering GapFill aggregates: %w", err)
	}

	timeIndex := -1
	for i, b := range in.GroupBy {
		if b.Result == in.TimeColumn {
			timeIndex = i
			break
		}
	}
	if timeIndex < 0 {
		return nil, fmt.Errorf("%w: GapFill: time column %q is not one of the group-by columns", ErrInternal, in.TimeColumn)
	}

	stride, err := resolveStride(in.Stride)
	if err != nil {
		return nil, fmt.Errorf("plan: lowering GapFill stride: %w", err)
	}

	rng, err := resolveRange(in.Range)
	if err != nil {
		return nil, fmt.Errorf("plan: lowering GapFill range: %w", err)
	}

	params := vm.Params{
		Group:      group,
		TimeIndex:  timeIndex,
		Aggregates: aggregates,
		Stride:     stride,
		Origin:     time.Unix(0, 0).UTC(),
		Range:      rng,
		Fill:       vm.FillNull,
	}

	return &GapFill{
		Nonterminal: Nonterminal{From: from},
		schema:      schema,
		params:      params,
		sortExpr:    sortOrder(in.GroupBy, in.TimeColumn),
		mem:         memory.NewGoAllocator(),
	}, nil
}

func resolveBindings(bindings []expr.Binding, schema *arrow.Schema) ([]vm.ColumnRef, error) {
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.Result
	}
	return vm.ResolveColumns(names, schema)
}

// sortOrder derives the required input ordering from G, permuting it so the
// time column sorts last, per iox_query's gap_fill_exec_sort_order test.
func sortOrder(groupBy []expr.Binding, timeColumn string) []sorting.Column {
	cols := make([]sorting.Column, 0, len(groupBy))
	var timeCol *sorting.Column
	for _, b := range groupBy {
		c := sorting.Column{Name: b.Result, Direction: sorting.Ascending, Nulls: sorting.NullsLast}
		if b.Result == timeColumn {
			timeCol = &c
			continue
		}
		cols = append(cols, c)
	}
	if timeCol != nil {
		cols = append(cols, *timeCol)
	}
	return cols
}

// resolveStride rejects a stride that does not constant-fold, and one that
// constant-folds to zero or negative: per spec.md §7/§4.4, "stride that is
// zero, negative, or non-constant-foldable" must fail during planning rather
// than reach GapFillStream, where a zero stride divides by zero and a
// negative stride walks the bucket grid backward forever.
func resolveStride(s pir.Stride) (vm.Stride, error) {
	if s.Calendar != "" {
		count, ok := literalInt(s.CalendarSize)
		if !ok {
			return vm.Stride{}, fmt.Errorf("%w: calendar stride size did not constant-fold to an integer", ErrNotImplemented)
		}
		if count <= 0 {
			return vm.Stride{}, fmt.Errorf("%w: calendar stride size must be positive, got %d", ErrNotImplemented, count)
		}
		unit := date.Months
		if s.Calendar == "year" || s.Calendar == "years" {
			unit = date.Years
		}
		return vm.Stride{Calendar: &date.CalendarInterval{Unit: unit, Count: int(count)}}, nil
	}
	nanos, ok := literalDuration(s.Interval)
	if !ok {
		return vm.Stride{}, fmt.Errorf("%w: stride interval did not constant-fold to a duration", ErrNotImplemented)
	}
	if nanos <= 0 {
		return vm.Stride{}, fmt.Errorf("%w: stride interval must be positive, got %d ns", ErrNotImplemented, nanos)
	}
	return vm.Stride{Nanos: nanos}, nil
}

func resolveRange(r pir.Range) (vm.BoundedRange, error) {
	lo, loIncl, err := resolveEndpoint(r.Lo)
	if err != nil {
		return vm.BoundedRange{}, fmt.Errorf("lower bound: %w", err)
	}
	hi, hiIncl, err := resolveEndpoint(r.Hi)
	if err != nil {
		return vm.BoundedRange{}, fmt.Errorf("upper bound: %w", err)
	}
	return vm.BoundedRange{Lo: lo, LoIncluded: loIncl, Hi: hi, HiIncluded: hiIncl}, nil
}

func resolveEndpoint(e pir.Endpoint) (time.Time, bool, error) {
	if e.Kind == pir.Unbounded {
		return time.Time{}, false, fmt.Errorf("%w: gap-fill range bound must be statically resolvable, got unbounded", ErrNotImplemented)
	}
	t, ok := literalTime(e.Expr)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%w: range bound did not constant-fold to a timestamp", ErrNotImplemented)
	}
	return t, e.Kind == pir.Included, nil
}

func literalInt(n expr.Node) (int64, bool) {
	lit, ok := n.(expr.Literal)
	if !ok {
		return 0, false
	}
	switch v := lit.Value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func literalDuration(n expr.Node) (int64, bool) {
	lit, ok := n.(expr.Literal)
	if !ok {
		return 0, false
	}
	switch v := lit.Value.(type) {
	case time.Duration:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func literalTime(n expr.Node) (time.Time, bool) {
	lit, ok := n.(expr.Literal)
	if !ok {
		return time.Time{}, false
	}
	switch v := lit.Value.(type) {
	case time.Time:
		return v, true
	case int64:
		return time.Unix(0, v).UTC(), true
	}
	return time.Time{}, false
}
