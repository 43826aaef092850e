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
	"strings"

	"github.com/damageboy/influxdb/expr"
)

// BindingList formats a list of expression bindings the way a logical plan
// node's display string does: "expr AS name, expr AS name, ...". Adapted
// from SnellerInc-sneller/vm.Selection.String, sized down to this module's
// minimal expr vocabulary.
type BindingList []expr.Binding

func (b BindingList) String() string {
	sub := make([]string, len(b))
	for i := range b {
		sub[i] = b[i].String()
	}
	return "[" + strings.Join(sub, ", ") + "]"
}

// GoString supports fmt's %#v for debugging, mirroring how sneller formats
// binding lists in error messages.
func (b BindingList) GoString() string {
	return fmt.Sprintf("BindingList(%s)", b.String())
}
