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

// Package plan holds the physical query-plan node tree. GapFill is the one
// node this module adds to it, mirroring the pir package's relationship to
// the logical layer: the rest of the physical layer (scans, joins, hash
// aggregation itself) is out of scope and is represented here only by the
// minimal ExecutionPlan contract GapFill must satisfy to sit inside a larger
// plan tree.
package plan

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"

	"github.com/damageboy/influxdb/sorting"
	"github.com/damageboy/influxdb/vm"
)

// Distribution describes what a node requires of its input's partitioning.
// GapFill always requires SinglePartition: spec.md's Non-goals explicitly
// rule out cross-partition parallelism.
type Distribution int

const (
	SinglePartition Distribution = iota
)

// ExecutionPlan is the physical-plan node contract, adapted from
// SnellerInc-sneller/plan.Op to the Arrow/DataFusion-flavored shape spec.md
// describes: ordering and distribution requirements instead of a push-based
// vm.QuerySink, and a pull-based Execute instead of exec().
type ExecutionPlan interface {
	fmt.Stringer

	Schema() *arrow.Schema
	Children() []ExecutionPlan
	WithNewChildren(children []ExecutionPlan) (ExecutionPlan, error)

	OutputPartitioning() int
	RequiredInputDistribution() []Distribution
	RequiredInputOrdering() [][]sorting.Column
	OutputOrdering() []sorting.Column
	MaintainsInputOrder() []bool

	// Execute returns a streaming reader over partition's rows. GapFill
	// only ever supports partition 0. ep carries the ambient execution
	// configuration (batch size, logger) and is threaded to every node in
	// the tree, mirroring SnellerInc-sneller/plan.Op.exec's dst/ep pair.
	Execute(ctx context.Context, partition int, ep *ExecParams) (array.RecordReader, error)
}

// Nonterminal is the embeddable single-input-node helper, adapted from
// SnellerInc-sneller/plan.Nonterminal.
type Nonterminal struct {
	From ExecutionPlan
}

func (n *Nonterminal) Children() []ExecutionPlan { return []ExecutionPlan{n.From} }

// ExecParams carries the ambient configuration an ExecutionPlan's Execute
// method needs: a cancellable context, the target batch size, and a scoped
// logger. Adapted from SnellerInc-sneller/plan.ExecParams. GapFill.Execute
// applies BatchSize and Log as overrides to the vm.Params resolved by
// LowerGapFill, when they are set; Context is the query-scoped context
// Execute's own ctx argument should normally derive from (Execute's ctx may
// further narrow it, e.g. per-partition cancellation, so GapFill.Execute
// prefers its own ctx argument over ep.Context when both are supplied).
type ExecParams struct {
	Context   context.Context
	BatchSize int
	Log       *logrus.Entry
}

// GapFill is the physical node described in spec.md §2 "PhysicalGapFill". It
// is constructed exclusively by LowerGapFill; see lower.go.
type GapFill struct {
	Nonterminal

	schema   *arrow.Schema
	params   vm.Params
	sortExpr []sorting.Column
	mem      memory.Allocator
}

func (g *GapFill) Schema() *arrow.Schema { return g.schema }

// OutputPartitioning is always 1: GapFill never fans out.
func (g *GapFill) OutputPartitioning() int { return 1 }

// RequiredInputDistribution always requires a single partition: spec.md's
// Non-goals rule out a cross-partition densification strategy.
func (g *GapFill) RequiredInputDistribution() []Distribution {
	return []Distribution{SinglePartition}
}

// RequiredInputOrdering returns the sort order the input must already
// satisfy: the group-by columns with the time column swapped to the last
// position, all ascending, nulls last. Computed once at construction time by
// LowerGapFill.
func (g *GapFill) RequiredInputOrdering() [][]sorting.Column {
	return [][]sorting.Column{g.sortExpr}
}

// OutputOrdering passes through the input's output ordering unchanged:
// densification only inserts rows, it never reorders them.
func (g *GapFill) OutputOrdering() []sorting.Column {
	return g.From.OutputOrdering()
}

// MaintainsInputOrder is always true: GapFill is a strict single-pass
// streaming operator.
func (g *GapFill) MaintainsInputOrder() []bool { return []bool{true} }

// WithNewChildren returns a clone of g with its single input replaced.
func (g *GapFill) WithNewChildren(children []ExecutionPlan) (ExecutionPlan, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("%w: GapFill.WithNewChildren: got %d children, want 1", ErrInternal, len(children))
	}
	g2 := *g
	g2.From = children[0]
	return &g2, nil
}

func (g *GapFill) String() string {
	return fmt.Sprintf("GapFillExec: group_expr=%v, aggr_expr=%v, stride=%v, time_range=[%s, %s]",
		g.params.Group, g.params.Aggregates, g.params.Stride, g.params.Range.Lo, g.params.Range.Hi)
}

// Execute runs the densification stream over partition 0 of the input. ep's
// BatchSize and Log, when set, override the defaults resolved at planning
// time (see LowerGapFill).
func (g *GapFill) Execute(ctx context.Context, partition int, ep *ExecParams) (array.RecordReader, error) {
	if partition != 0 {
		return nil, vm.ErrBadPartition
	}
	if ctx == nil && ep != nil {
		ctx = ep.Context
	}
	input, err := g.From.Execute(ctx, 0, ep)
	if err != nil {
		return nil, fmt.Errorf("plan: GapFill: executing input: %w", err)
	}
	params := g.params
	if ep != nil {
		if ep.BatchSize > 0 {
			params.BatchSize = ep.BatchSize
		}
		if ep.Log != nil {
			params.Log = ep.Log
		}
	}
	return vm.NewGapFillStream(ctx, input, g.schema, params, g.mem)
}
