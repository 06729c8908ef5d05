// Package rules implements Kite's rule evaluation: the typed expression
// evaluator, the six built-in detectors, the per-tenant rule engine, compound
// rule groups, and CEL-scripted rules.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openrisk-labs/kite/internal/domain"
)

// Evaluation errors. A rule that produces one of these is skipped and logged;
// it never blocks other rules.
var (
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownOperator = errors.New("unsupported operator for field type")
	ErrBadLiteral      = errors.New("literal does not parse as field type")
)

// FieldType is the declared type of a snapshot field.
type FieldType int

const (
	FieldDecimal FieldType = iota
	FieldInt
	FieldString
)

// Snapshot exposes the fixed field catalogue over one immutable
// transaction+profile pair. All detectors read the same snapshot.
type Snapshot struct {
	Tx      *domain.Transaction
	Profile *domain.CustomerProfile
}

type fieldValue struct {
	typ FieldType
	dec decimal.Decimal
	num int64
	str string
}

type fieldSpec struct {
	typ FieldType
	get func(s *Snapshot) fieldValue
}

// catalogue is the fixed set of addressable fields. Unknown names are
// evaluation errors, not matches.
var catalogue = map[string]fieldSpec{
	"Amount": {FieldDecimal, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldDecimal, dec: s.Tx.Amount}
	}},
	"SourceCountry": {FieldString, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldString, str: s.Tx.SourceCountry}
	}},
	"DestinationCountry": {FieldString, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldString, str: s.Tx.DestinationCountry}
	}},
	"SourceCurrency": {FieldString, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldString, str: s.Tx.SourceCurrency}
	}},
	"DestinationCurrency": {FieldString, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldString, str: s.Tx.DestinationCurrency}
	}},
	"TransactionHour": {FieldInt, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldInt, num: int64(s.Tx.Hour())}
	}},
	"TotalTransactions": {FieldInt, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldInt, num: s.Profile.TotalTransactions}
	}},
	"TotalVolume": {FieldDecimal, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldDecimal, dec: s.Profile.TotalVolume}
	}},
	"AvgTransaction": {FieldDecimal, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldDecimal, dec: s.Profile.AvgTransaction}
	}},
	"MaxTransaction": {FieldDecimal, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldDecimal, dec: s.Profile.MaxTransaction}
	}},
	"FlaggedCount": {FieldInt, func(s *Snapshot) fieldValue {
		return fieldValue{typ: FieldInt, num: s.Profile.FlaggedCount}
	}},
}

// Fields returns the catalogue's field names, for validation endpoints.
func Fields() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	return names
}

// Evaluate evaluates one (field, operator, literal) triple against a
// snapshot. Numeric operators require the literal to parse as the field's
// declared type; string operators compare case-insensitively.
func Evaluate(field, operator, literal string, snap *Snapshot) (bool, error) {
	spec, ok := catalogue[field]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	val := spec.get(snap)

	switch spec.typ {
	case FieldDecimal:
		lit, err := decimal.NewFromString(literal)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a decimal", ErrBadLiteral, literal)
		}
		return compareOrdered(val.dec.Cmp(lit), operator)

	case FieldInt:
		lit, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not an integer", ErrBadLiteral, literal)
		}
		cmp := 0
		switch {
		case val.num < lit:
			cmp = -1
		case val.num > lit:
			cmp = 1
		}
		return compareOrdered(cmp, operator)

	case FieldString:
		return compareString(val.str, literal, operator)
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
}

// compareOrdered maps a three-way comparison result through a numeric operator.
func compareOrdered(cmp int, operator string) (bool, error) {
	switch operator {
	case ">=":
		return cmp >= 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case "<":
		return cmp < 0, nil
	case "==":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	}
	return false, fmt.Errorf("%w: %q on numeric field", ErrUnknownOperator, operator)
}

func compareString(value, literal, operator string) (bool, error) {
	value = strings.ToLower(value)
	literal = strings.ToLower(literal)

	switch operator {
	case "==":
		return value == literal, nil
	case "!=":
		return value != literal, nil
	case "contains":
		return strings.Contains(value, literal), nil
	case "not_contains":
		return !strings.Contains(value, literal), nil
	}
	return false, fmt.Errorf("%w: %q on string field", ErrUnknownOperator, operator)
}
