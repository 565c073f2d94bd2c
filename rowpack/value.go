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

package rowpack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags which scalar variant a Value holds (§9: "duck-typed row
// dictionaries... a tagged value variant over {Int, Float, Text, Null}",
// extended here with Bool and Decimal per SPEC_FULL.md §3.1).
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindBool:
		return "BOOL"
	case KindDecimal:
		return "DECIMAL"
	default:
		return "UNKNOWN"
	}
}

// Value is a single row scalar. Exactly one of the typed fields is
// meaningful, selected by Kind; the zero Value is NULL.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
	Bool  bool
	Dec   decimal.Decimal
}

func Null() Value                  { return Value{Kind: KindNull} }
func NewInt(i int64) Value         { return Value{Kind: KindInt, Int: i} }
func NewFloat(f float64) Value     { return Value{Kind: KindFloat, Float: f} }
func NewText(s string) Value       { return Value{Kind: KindText, Text: s} }
func NewBool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func NewDecimal(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Dec: d} }

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindText:
		return v.Text == o.Text
	case KindBool:
		return v.Bool == o.Bool
	case KindDecimal:
		return v.Dec.Equal(o.Dec)
	default:
		return false
	}
}

// String renders v as geddydb's canonical string form, used wherever the
// spec calls for str(row[column]) (delete_rows' column == value filter).
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindText:
		return v.Text
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDecimal:
		return v.Dec.String()
	default:
		return ""
	}
}

const decimalMarker = "$dec"

// MarshalJSON encodes v so that Int and Float stay distinguishable on
// round trip: an Int is written as a bare JSON integer, a Float always
// carries a decimal point or exponent, and a Decimal is wrapped in a
// one-key object so it is never mistaken for a TEXT string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case KindFloat:
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case KindText:
		return json.Marshal(v.Text)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindDecimal:
		return json.Marshal(map[string]string{decimalMarker: v.Dec.String()})
	default:
		return nil, fmt.Errorf("rowpack: marshal: unknown kind %d", v.Kind)
	}
}

// UnmarshalJSON reverses MarshalJSON, classifying a bare number token as
// Int or Float by whether its textual form carries a decimal point or
// exponent (see ErrCorrupt for malformed input).
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*v = Null()
		return nil
	case trimmed == "true":
		*v = NewBool(true)
		return nil
	case trimmed == "false":
		*v = NewBool(false)
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: text: %v", ErrCorrupt, err)
		}
		*v = NewText(s)
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var obj map[string]string
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%w: decimal: %v", ErrCorrupt, err)
		}
		raw, ok := obj[decimalMarker]
		if !ok {
			return fmt.Errorf("%w: object value missing %q", ErrCorrupt, decimalMarker)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%w: decimal: %v", ErrCorrupt, err)
		}
		*v = NewDecimal(d)
		return nil
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("%w: number: %v", ErrCorrupt, err)
		}
		s := num.String()
		if strings.ContainsAny(s, ".eE") {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("%w: float: %v", ErrCorrupt, err)
			}
			*v = NewFloat(f)
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: int: %v", ErrCorrupt, err)
		}
		*v = NewInt(i)
		return nil
	}
}
