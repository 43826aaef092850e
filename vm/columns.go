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
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// ColumnRef is a physical column resolved against a concrete schema: a name
// bound to its position and type.
type ColumnRef struct {
	Name  string
	Index int
	Type  arrow.DataType
}

func (c ColumnRef) String() string { return c.Name }

// ResolveColumn looks up name in schema and returns its physical position.
func ResolveColumn(name string, schema *arrow.Schema) (ColumnRef, error) {
	idx := schema.FieldIndices(name)
	if len(idx) == 0 {
		return ColumnRef{}, fmt.Errorf("vm: column %q not found in input schema", name)
	}
	f := schema.Field(idx[0])
	return ColumnRef{Name: name, Index: idx[0], Type: f.Type}, nil
}

// ResolveColumns resolves a list of column names in order.
func ResolveColumns(names []string, schema *arrow.Schema) ([]ColumnRef, error) {
	out := make([]ColumnRef, len(names))
	for i, n := range names {
		c, err := ResolveColumn(n, schema)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
