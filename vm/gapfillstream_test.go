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
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var epoch = time.Unix(0, 0).UTC()

func minute(n int) time.Time { return epoch.Add(time.Duration(n) * time.Minute) }

// row is (series, minute, value); value == nil means a NULL aggregate cell.
type row struct {
	series string
	min    int
	value  any
}

var gapFillTestSchema = arrow.NewSchema([]arrow.Field{
	{Name: "series", Type: arrow.BinaryTypes.String},
	{Name: "time", Type: &arrow.TimestampType{Unit: arrow.Nanosecond}},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

func buildInput(t *testing.T, mem memory.Allocator, rows []row) array.RecordReader {
	t.Helper()
	rb := array.NewRecordBuilder(mem, gapFillTestSchema)
	defer rb.Release()
	series := rb.Field(0).(*array.StringBuilder)
	ts := rb.Field(1).(*array.TimestampBuilder)
	val := rb.Field(2).(*array.Float64Builder)
	for _, r := range rows {
		series.Append(r.series)
		ts.Append(arrow.Timestamp(minute(r.min).UnixNano()))
		if r.value == nil {
			val.AppendNull()
		} else {
			val.Append(r.value.(float64))
		}
	}
	rec := rb.NewRecord()
	reader, err := array.NewRecordReader(gapFillTestSchema, []arrow.Record{rec})
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	rec.Release()
	return reader
}

func testParams(rng BoundedRange) Params {
	return Params{
		Group: []ColumnRef{
			{Name: "series", Index: 0, Type: arrow.BinaryTypes.String},
			{Name: "time", Index: 1, Type: &arrow.TimestampType{Unit: arrow.Nanosecond}},
		},
		TimeIndex:  1,
		Aggregates: []ColumnRef{{Name: "value", Index: 2, Type: arrow.PrimitiveTypes.Float64}},
		Stride:     Stride{Nanos: int64(time.Minute)},
		Origin:     epoch,
		Range:      rng,
		Fill:       FillNull,
		BatchSize:  4,
	}
}

func rangeMinutes(loMin int, loIncl bool, hiMin int, hiIncl bool) BoundedRange {
	return BoundedRange{Lo: minute(loMin), LoIncluded: loIncl, Hi: minute(hiMin), HiIncluded: hiIncl}
}

func collect(t *testing.T, g *GapFillStream) []row {
	t.Helper()
	var out []row
	for g.Next() {
		rec := g.Record()
		seriesCol := rec.Column(0).(*array.String)
		timeCol := rec.Column(1).(*array.Timestamp)
		valCol := rec.Column(2).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			r := row{series: seriesCol.Value(i)}
			r.min = int(timeValue(timeCol.Value(i)).Sub(epoch) / time.Minute)
			if valCol.IsNull(i) {
				r.value = nil
			} else {
				r.value = valCol.Value(i)
			}
			out = append(out, r)
		}
	}
	if err := g.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out
}

func mustStream(t *testing.T, input array.RecordReader, params Params) *GapFillStream {
	t.Helper()
	g, err := NewGapFillStream(context.Background(), input, gapFillTestSchema, params, memory.NewGoAllocator())
	if err != nil {
		t.Fatalf("NewGapFillStream: %v", err)
	}
	return g
}

func TestGapFillSingleSeriesSingleHole(t *testing.T) {
	// S1: stride 1 min, range [00:00, 00:05), input at 00:00, 00:02, 00:04.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{
		{"A", 0, 10.0}, {"A", 2, 12.0}, {"A", 4, 14.0},
	})
	g := mustStream(t, input, testParams(rangeMinutes(0, true, 5, false)))
	got := collect(t, g)
	want := []row{
		{"A", 0, 10.0}, {"A", 1, nil}, {"A", 2, 12.0}, {"A", 3, nil}, {"A", 4, 14.0},
	}
	assertRows(t, got, want)
}

func TestGapFillTwoSeriesStaggered(t *testing.T) {
	// S2: stride 1 min, range [00:00, 00:03), input (A,00:01), (B,00:02).
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{
		{"A", 1, 1.0}, {"B", 2, 2.0},
	})
	g := mustStream(t, input, testParams(rangeMinutes(0, true, 3, false)))
	got := collect(t, g)
	want := []row{
		{"A", 0, nil}, {"A", 1, 1.0}, {"A", 2, nil},
		{"B", 0, nil}, {"B", 1, nil}, {"B", 2, 2.0},
	}
	assertRows(t, got, want)
}

func TestGapFillEmptyInput(t *testing.T) {
	// S3: empty input over a full range yields empty output.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, nil)
	g := mustStream(t, input, testParams(rangeMinutes(0, true, 60, false)))
	got := collect(t, g)
	if len(got) != 0 {
		t.Fatalf("got %d rows, want 0", len(got))
	}
}

func TestGapFillRowAtRangeStart(t *testing.T) {
	// S4: range [00:00, 00:03), single row at 00:00.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{{"A", 0, 5.0}})
	g := mustStream(t, input, testParams(rangeMinutes(0, true, 3, false)))
	got := collect(t, g)
	want := []row{{"A", 0, 5.0}, {"A", 1, nil}, {"A", 2, nil}}
	assertRows(t, got, want)
}

func TestGapFillExcludedStartIncludedEnd(t *testing.T) {
	// S5: range (00:00, 00:03], single row at 00:02.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{{"A", 2, 2.0}})
	g := mustStream(t, input, testParams(rangeMinutes(0, false, 3, true)))
	got := collect(t, g)
	want := []row{{"A", 1, nil}, {"A", 2, 2.0}, {"A", 3, nil}}
	assertRows(t, got, want)
}

func TestGapFillOrderingViolation(t *testing.T) {
	// S6: (A,00:02) followed by (A,00:01) must fail after the first row.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{{"A", 2, 1.0}, {"A", 1, 2.0}})
	g := mustStream(t, input, testParams(rangeMinutes(0, true, 5, false)))

	var got []row
	for g.Next() {
		rec := g.Record()
		seriesCol := rec.Column(0).(*array.String)
		timeCol := rec.Column(1).(*array.Timestamp)
		valCol := rec.Column(2).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			got = append(got, row{
				series: seriesCol.Value(i),
				min:    int(timeValue(timeCol.Value(i)).Sub(epoch) / time.Minute),
				value:  valCol.Value(i),
			})
		}
	}
	if !errors.Is(g.Err(), ErrOutOfOrder) {
		t.Fatalf("Err() = %v, want wrapping ErrOutOfOrder", g.Err())
	}
	if len(got) == 0 {
		t.Fatal("expected at least the first row to have been produced before the error")
	}
}

func TestGapFillDuplicateTimestamp(t *testing.T) {
	// Duplicate rows for the same series and time pass through in order,
	// per spec.md's tie-break rule, rather than erroring as out-of-order.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{{"A", 0, 1.0}, {"A", 0, 2.0}, {"A", 1, 3.0}})
	g := mustStream(t, input, testParams(rangeMinutes(0, true, 2, false)))
	got := collect(t, g)
	want := []row{{"A", 0, 1.0}, {"A", 0, 2.0}, {"A", 1, 3.0}}
	assertRows(t, got, want)
}

func TestGapFillIdempotentOnDenseInput(t *testing.T) {
	// Property #7: re-running gap-fill over its own (already dense) output
	// is a no-op, since every bucket in range is already present.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{
		{"A", 0, 10.0}, {"A", 2, 12.0}, {"A", 4, 14.0},
	})
	params := testParams(rangeMinutes(0, true, 5, false))
	first := mustStream(t, input, params)
	firstPass := collect(t, first)

	mem2 := memory.NewGoAllocator()
	input2 := buildInput(t, mem2, firstPass)
	second := mustStream(t, input2, params)
	secondPass := collect(t, second)

	assertRows(t, secondPass, firstPass)
}

func TestGapFillRowsOutsideRangePassThrough(t *testing.T) {
	// Rows outside [loBucket, hiBucket] -- before the range starts or after
	// it ends -- pass through unchanged and never perturb the bucket grid,
	// per spec.md §8's range-truncation invariant.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{
		{"A", 0, 100.0}, {"A", 1, 1.0}, {"A", 2, 2.0}, {"A", 5, 500.0},
	})
	g := mustStream(t, input, testParams(rangeMinutes(1, true, 3, false)))
	got := collect(t, g)
	want := []row{
		{"A", 0, 100.0}, {"A", 1, 1.0}, {"A", 2, 2.0}, {"A", 5, 500.0},
	}
	assertRows(t, got, want)
}

func TestGapFillBatchSizeSplitsOutput(t *testing.T) {
	// The same S1 scenario but with a batch size smaller than the number of
	// output rows must still produce the identical row sequence, split
	// across multiple Next() calls.
	mem := memory.NewGoAllocator()
	input := buildInput(t, mem, []row{{"A", 0, 10.0}, {"A", 2, 12.0}, {"A", 4, 14.0}})
	params := testParams(rangeMinutes(0, true, 5, false))
	params.BatchSize = 1
	g := mustStream(t, input, params)

	var batches int
	var got []row
	for g.Next() {
		batches++
		rec := g.Record()
		if rec.NumRows() != 1 {
			t.Fatalf("batch %d has %d rows, want 1", batches, rec.NumRows())
		}
		seriesCol := rec.Column(0).(*array.String)
		timeCol := rec.Column(1).(*array.Timestamp)
		valCol := rec.Column(2).(*array.Float64)
		r := row{series: seriesCol.Value(0), min: int(timeValue(timeCol.Value(0)).Sub(epoch) / time.Minute)}
		if !valCol.IsNull(0) {
			r.value = valCol.Value(0)
		}
		got = append(got, r)
	}
	if err := g.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if batches < 5 {
		t.Fatalf("got %d batches, want at least 5 (one per output row)", batches)
	}
	want := []row{{"A", 0, 10.0}, {"A", 1, nil}, {"A", 2, 12.0}, {"A", 3, nil}, {"A", 4, 14.0}}
	assertRows(t, got, want)
}

func assertRows(t *testing.T, got, want []row) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d\n got=%+v\nwant=%+v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
