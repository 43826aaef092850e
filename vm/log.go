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

import "github.com/sirupsen/logrus"

// Log is the diagnostic logger used by the streaming engine. It defaults to
// the standard logrus logger so that a host process gets gap-fill stream
// diagnostics (series transitions, out-of-order input) without any setup,
// but can be overridden wholesale by an embedding application.
var Log logrus.FieldLogger = logrus.StandardLogger()
