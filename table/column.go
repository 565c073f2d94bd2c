/*
Copyright (C) 2026  GeddyDB Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package table

import "strings"

// DataType names a column's scalar kind, mirroring the reference's
// DataType enum (original_source/core/datatypes.py is not present in
// the distillation; the values below are the set rowpack.Kind
// supports).
type DataType string

const (
	DataTypeInt     DataType = "INT"
	DataTypeFloat   DataType = "FLOAT"
	DataTypeText    DataType = "TEXT"
	DataTypeBool    DataType = "BOOL"
	DataTypeDecimal DataType = "DECIMAL"
)

// Constraint names one of the recognised column constraints (§9
// "Enumerated configuration").
const (
	ConstraintPrimaryKey    = "PRIMARY KEY"
	ConstraintUnique        = "UNIQUE"
	ConstraintNotNull       = "NOT NULL"
	ConstraintAutoIncrement = "AUTO_INCREMENT"
)

// Column describes one table column: its name, scalar type, and
// constraints. Grounded on original_source/core/column.go.
type Column struct {
	Name          string
	DType         DataType
	Constraints   []string
	AutoIncrement bool
}

func (c Column) hasConstraint(name string) bool {
	for _, c := range c.Constraints {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// IsPrimary reports whether c carries the PRIMARY KEY constraint.
func (c Column) IsPrimary() bool { return c.hasConstraint(ConstraintPrimaryKey) }

// IsUnique reports whether c must hold distinct values: primary-key
// columns are always unique, independent of an explicit UNIQUE.
func (c Column) IsUnique() bool { return c.IsPrimary() || c.hasConstraint(ConstraintUnique) }

// IsNotNull reports whether c rejects NULL on insert: primary-key
// columns are always NOT NULL, independent of an explicit constraint.
func (c Column) IsNotNull() bool { return c.IsPrimary() || c.hasConstraint(ConstraintNotNull) }
