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
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"
)

// Params describes one instantiation of the gap-fill densification
// algorithm, fully resolved against a concrete physical schema.
//
// The output schema is assumed (per spec.md §3, and confirmed against the
// reference gapfill.rs test fixtures) to be exactly the group-by columns
// followed by the aggregate columns, in that order, with no other columns
// interleaved -- this is what a preceding aggregation operator naturally
// produces. Group therefore occupies schema columns [0, len(Group)) and
// Aggregates occupies [len(Group), len(Group)+len(Aggregates)).
type Params struct {
	// Group is g_1..g_k, the GROUP BY columns, in their original (schema)
	// column order. Exactly one of them -- at TimeIndex -- is the time
	// column; it need not be last.
	Group []ColumnRef
	// TimeIndex is the index into Group (and, per the schema-order
	// assumption above, the absolute schema column index) of the time
	// column.
	TimeIndex int
	// Aggregates is a_1..a_m, the pre-computed aggregate columns.
	Aggregates []ColumnRef

	Stride Stride
	Origin time.Time
	Range  BoundedRange
	Fill   FillStrategy

	// BatchSize caps the number of rows GapFillStream produces per Next
	// call. Zero selects a built-in default.
	BatchSize int

	// Log, if non-nil, overrides the package-level Log for diagnostics
	// emitted by this stream instance -- the per-query-scoped logger a host
	// engine's plan.ExecParams supplies.
	Log logrus.FieldLogger
}

const defaultBatchSize = 1024

func (p Params) seriesKeyIndices() []int {
	idx := make([]int, 0, len(p.Group)-1)
	for i := range p.Group {
		if i != p.TimeIndex {
			idx = append(idx, i)
		}
	}
	return idx
}

func (p Params) numColumns() int {
	return len(p.Group) + len(p.Aggregates)
}

// NewGapFillStream constructs the streaming densification operator described
// in spec.md §4.4. input must yield batches sorted by (series_key, time)
// ascending, nulls last, as described by the physical node's required input
// ordering.
func NewGapFillStream(ctx context.Context, input array.RecordReader, schema *arrow.Schema, params Params, mem memory.Allocator) (*GapFillStream, error) {
	if params.TimeIndex < 0 || params.TimeIndex >= len(params.Group) {
		return nil, fmt.Errorf("vm: gap-fill time column index %d out of range for %d group columns", params.TimeIndex, len(params.Group))
	}
	if params.Fill != FillNull {
		return nil, fmt.Errorf("vm: gap-fill fill strategy %s is not implemented", params.Fill)
	}
	if params.numColumns() != schema.NumFields() {
		return nil, fmt.Errorf("vm: gap-fill schema has %d columns, want %d (group=%d + aggregates=%d)",
			schema.NumFields(), params.numColumns(), len(params.Group), len(params.Aggregates))
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	log := params.Log
	if log == nil {
		log = Log
	}

	g := &GapFillStream{
		ctx:       ctx,
		input:     input,
		schema:    schema,
		params:    params,
		skIndices: params.seriesKeyIndices(),
		batchSize: batchSize,
		mem:       mem,
		log:       log,
		refs:      1,
	}
	g.loBucket = params.Stride.LoBucket(params.Origin, params.Range)
	g.hiBucket = params.Stride.HiBucket(params.Origin, params.Range)
	return g, nil
}

// GapFillStream implements array.RecordReader. It pulls sorted, pre-aggregated
// batches from input and interleaves NULL-filled rows for every bucket in
// [lo,hi] that the input skips over, per series.
//
// The algorithm keeps O(1) state per series: the current series' key values,
// the next bucket boundary owed for that series, and a single buffered
// ("peeked") input row. See spec.md §3 for the state machine this
// implements: series continuation, series transition, and end-of-input.
type GapFillStream struct {
	ctx       context.Context
	input     array.RecordReader
	schema    *arrow.Schema
	params    Params
	skIndices []int
	batchSize int
	mem       memory.Allocator
	log       logrus.FieldLogger

	loBucket time.Time
	hiBucket time.Time

	// input row cursor
	curBatch arrow.Record
	curRow   int
	inputEOF bool

	// one buffered, not-yet-consumed input row
	pendingValid bool
	pendingRec   arrow.Record
	pendingRow   int
	pendingKey   []any
	pendingTime  time.Time

	// current series state
	haveSeries bool
	seriesKey  []any
	nextBucket time.Time

	out  arrow.Record
	err  error
	done bool
	refs int64
}

var _ array.RecordReader = (*GapFillStream)(nil)

func (g *GapFillStream) Schema() *arrow.Schema { return g.schema }

func (g *GapFillStream) Err() error { return g.err }

func (g *GapFillStream) Record() arrow.Record { return g.out }

func (g *GapFillStream) Retain() { atomic.AddInt64(&g.refs, 1) }

func (g *GapFillStream) Release() {
	if atomic.AddInt64(&g.refs, -1) == 0 {
		if g.out != nil {
			g.out.Release()
			g.out = nil
		}
		if g.curBatch != nil {
			g.curBatch.Release()
			g.curBatch = nil
		}
	}
}

// Next advances the stream by one output batch, building up to batchSize
// rows. It returns false when the stream is exhausted or an error occurred;
// callers must check Err() to distinguish the two, per array.RecordReader's
// contract. When an error occurs after some rows of a batch were built, those
// rows are returned first and the following call returns false.
func (g *GapFillStream) Next() bool {
	if g.out != nil {
		g.out.Release()
		g.out = nil
	}
	if g.err != nil || g.done {
		return false
	}

	rb := array.NewRecordBuilder(g.mem, g.schema)
	defer rb.Release()

	rows := 0
	for rows < g.batchSize {
		if err := g.ctx.Err(); err != nil {
			g.err = err
			break
		}
		emitted, more, err := g.step(rb)
		if err != nil {
			g.err = err
			break
		}
		if emitted {
			rows++
		}
		if !more {
			break
		}
	}

	if rows == 0 {
		return false
	}
	if g.err != nil {
		// Rows completed before the error are still delivered; the error
		// ends the stream on the following call. A batch holding a row left
		// half-written by a failed passthrough is dropped instead.
		for i := 0; i < g.params.numColumns(); i++ {
			if rb.Field(i).Len() != rows {
				return false
			}
		}
	}
	g.out = rb.NewRecord()
	return true
}

// step performs one unit of work: it emits at most one output row into rb
// and reports whether the stream has more work to do (more=false means the
// stream is now done). It never blocks on more than one input row.
func (g *GapFillStream) step(rb *array.RecordBuilder) (emitted bool, more bool, err error) {
	ok, err := g.ensurePending()
	if err != nil {
		return false, false, err
	}
	if !ok {
		return g.stepEndOfInput(rb)
	}

	key, t := g.pendingKey, g.pendingTime
	outOfRange := t.Before(g.loBucket) || t.After(g.hiBucket)

	if g.haveSeries && equalKey(key, g.seriesKey) {
		if outOfRange {
			if err := g.emitPassthrough(rb); err != nil {
				return false, false, err
			}
			g.consumePending()
			return true, true, nil
		}
		switch {
		case g.nextBucket.Before(t):
			g.emitNull(rb, g.nextBucket)
			g.nextBucket = g.params.Stride.Advance(g.nextBucket)
			return true, true, nil
		case g.nextBucket.Equal(t):
			if err := g.emitPassthrough(rb); err != nil {
				return false, false, err
			}
			g.nextBucket = g.params.Stride.Advance(t)
			g.consumePending()
			return true, true, nil
		default: // g.nextBucket.After(t): duplicate of the previous bucket, or out of order
			prev := g.params.Stride.Retreat(g.params.Origin, g.nextBucket)
			if t.Equal(prev) {
				if err := g.emitPassthrough(rb); err != nil {
					return false, false, err
				}
				g.consumePending()
				return true, true, nil
			}
			g.log.WithField("series", key).WithField("row_time", t).WithField("expected_after", prev).
				Error("gap-fill: input row precedes the previous row for this series")
			return false, false, fmt.Errorf("vm: %w: row at %s precedes previous row at %s", ErrOutOfOrder, t, prev)
		}
	}

	// Series transition (including the very first series).
	if g.haveSeries {
		if !g.nextBucket.After(g.hiBucket) {
			g.emitNull(rb, g.nextBucket)
			g.nextBucket = g.params.Stride.Advance(g.nextBucket)
			return true, true, nil
		}
	}
	g.haveSeries = true
	g.seriesKey = append([]any(nil), key...)
	g.nextBucket = g.loBucket
	g.log.WithField("series", g.seriesKey).Debug("gap-fill: starting series")
	if outOfRange {
		if err := g.emitPassthrough(rb); err != nil {
			return false, false, err
		}
		g.consumePending()
		return true, true, nil
	}
	return false, true, nil
}

func (g *GapFillStream) stepEndOfInput(rb *array.RecordBuilder) (emitted bool, more bool, err error) {
	if g.haveSeries {
		if !g.nextBucket.After(g.hiBucket) {
			g.emitNull(rb, g.nextBucket)
			g.nextBucket = g.params.Stride.Advance(g.nextBucket)
			return true, true, nil
		}
	}
	g.done = true
	return false, false, nil
}

// ensurePending loads the next input row into the pending slot, pulling a
// fresh batch from the input reader as needed. It returns false (with no
// error) once the input is genuinely exhausted.
func (g *GapFillStream) ensurePending() (bool, error) {
	if g.pendingValid {
		return true, nil
	}
	for {
		if g.curBatch != nil && g.curRow < int(g.curBatch.NumRows()) {
			g.pendingRec = g.curBatch
			g.pendingRow = g.curRow
			g.curRow++
			key, t, err := g.extract(g.pendingRec, g.pendingRow)
			if err != nil {
				return false, err
			}
			g.pendingKey, g.pendingTime = key, t
			g.pendingValid = true
			return true, nil
		}
		if g.inputEOF {
			return false, nil
		}
		if g.curBatch != nil {
			g.curBatch.Release()
			g.curBatch = nil
		}
		if !g.input.Next() {
			g.inputEOF = true
			if err := g.input.Err(); err != nil {
				return false, err
			}
			continue
		}
		g.curBatch = g.input.Record()
		g.curBatch.Retain()
		g.curRow = 0
	}
}

func (g *GapFillStream) consumePending() {
	g.pendingValid = false
}

func (g *GapFillStream) extract(rec arrow.Record, row int) (key []any, t time.Time, err error) {
	ts, ok := rec.Column(g.params.TimeIndex).(*array.Timestamp)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("vm: gap-fill time column is not a timestamp array")
	}
	if ts.IsNull(row) {
		return nil, time.Time{}, fmt.Errorf("vm: gap-fill time column must not be null")
	}
	t = timeValue(ts.Value(row))

	key = make([]any, len(g.skIndices))
	for i, idx := range g.skIndices {
		key[i] = cellValue(rec.Column(idx), row)
	}
	return key, t, nil
}

// emitPassthrough copies the pending row's entire width through to rb
// unchanged.
func (g *GapFillStream) emitPassthrough(rb *array.RecordBuilder) error {
	for i := 0; i < g.params.numColumns(); i++ {
		if err := copyValue(rb.Field(i), g.pendingRec.Column(i), g.pendingRow); err != nil {
			return err
		}
	}
	return nil
}

// emitNull synthesizes a row for bucket: series-key columns copied from the
// current series, the time column set to bucket, and every aggregate column
// null.
func (g *GapFillStream) emitNull(rb *array.RecordBuilder, bucket time.Time) {
	skPos := 0
	for j := range g.params.Group {
		if j == g.params.TimeIndex {
			writeTimestamp(rb.Field(j), bucket)
			continue
		}
		writeValue(rb.Field(j), g.seriesKey[skPos])
		skPos++
	}
	for j := len(g.params.Group); j < g.params.numColumns(); j++ {
		rb.Field(j).AppendNull()
	}
}

func equalKey(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func timeValue(ts arrow.Timestamp) time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

func writeTimestamp(b array.Builder, t time.Time) {
	b.(*array.TimestampBuilder).Append(arrow.Timestamp(t.UnixNano()))
}

// cellValue extracts row from src as a comparable, storable Go value, or nil
// for a null cell.
func cellValue(src arrow.Array, row int) any {
	if src.IsNull(row) {
		return nil
	}
	switch s := src.(type) {
	case *array.Boolean:
		return s.Value(row)
	case *array.Int8:
		return s.Value(row)
	case *array.Int16:
		return s.Value(row)
	case *array.Int32:
		return s.Value(row)
	case *array.Int64:
		return s.Value(row)
	case *array.Uint8:
		return s.Value(row)
	case *array.Uint16:
		return s.Value(row)
	case *array.Uint32:
		return s.Value(row)
	case *array.Uint64:
		return s.Value(row)
	case *array.Float32:
		return s.Value(row)
	case *array.Float64:
		return s.Value(row)
	case *array.String:
		return s.Value(row)
	case *array.Timestamp:
		return s.Value(row)
	case *array.Date32:
		return s.Value(row)
	default:
		return nil
	}
}

// writeValue appends v (as returned by cellValue) to b, or a null if v is
// nil.
func writeValue(b array.Builder, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch x := v.(type) {
	case bool:
		b.(*array.BooleanBuilder).Append(x)
	case int8:
		b.(*array.Int8Builder).Append(x)
	case int16:
		b.(*array.Int16Builder).Append(x)
	case int32:
		b.(*array.Int32Builder).Append(x)
	case int64:
		b.(*array.Int64Builder).Append(x)
	case uint8:
		b.(*array.Uint8Builder).Append(x)
	case uint16:
		b.(*array.Uint16Builder).Append(x)
	case uint32:
		b.(*array.Uint32Builder).Append(x)
	case uint64:
		b.(*array.Uint64Builder).Append(x)
	case float32:
		b.(*array.Float32Builder).Append(x)
	case float64:
		b.(*array.Float64Builder).Append(x)
	case string:
		b.(*array.StringBuilder).Append(x)
	case arrow.Timestamp:
		b.(*array.TimestampBuilder).Append(x)
	case arrow.Date32:
		b.(*array.Date32Builder).Append(x)
	}
}

// copyValue copies row from src into dst, appending null if the source cell
// is null. It returns an error for column types the gap-fill engine does not
// know how to move verbatim.
func copyValue(dst array.Builder, src arrow.Array, row int) error {
	if src.IsNull(row) {
		dst.AppendNull()
		return nil
	}
	switch s := src.(type) {
	case *array.Boolean:
		dst.(*array.BooleanBuilder).Append(s.Value(row))
	case *array.Int8:
		dst.(*array.Int8Builder).Append(s.Value(row))
	case *array.Int16:
		dst.(*array.Int16Builder).Append(s.Value(row))
	case *array.Int32:
		dst.(*array.Int32Builder).Append(s.Value(row))
	case *array.Int64:
		dst.(*array.Int64Builder).Append(s.Value(row))
	case *array.Uint8:
		dst.(*array.Uint8Builder).Append(s.Value(row))
	case *array.Uint16:
		dst.(*array.Uint16Builder).Append(s.Value(row))
	case *array.Uint32:
		dst.(*array.Uint32Builder).Append(s.Value(row))
	case *array.Uint64:
		dst.(*array.Uint64Builder).Append(s.Value(row))
	case *array.Float32:
		dst.(*array.Float32Builder).Append(s.Value(row))
	case *array.Float64:
		dst.(*array.Float64Builder).Append(s.Value(row))
	case *array.String:
		dst.(*array.StringBuilder).Append(s.Value(row))
	case *array.Timestamp:
		dst.(*array.TimestampBuilder).Append(s.Value(row))
	case *array.Date32:
		dst.(*array.Date32Builder).Append(s.Value(row))
	default:
		return fmt.Errorf("vm: unsupported column type %s in gap-fill passthrough", src.DataType())
	}
	return nil
}
