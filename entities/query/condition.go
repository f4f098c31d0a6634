//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package query defines the canonical query tree produced by both the SQL
// and the JSON DSL parsers and consumed by the selector.
package query

import (
	"github.com/weaviate/kestrel/entities/dberrors"
)

type CondType int

const (
	CondAny CondType = iota
	CondEq
	CondLt
	CondLe
	CondGt
	CondGe
	CondRange
	CondSet
	CondAllSet
	CondEmpty
	CondLike
	CondDWithin
)

func (c CondType) String() string {
	switch c {
	case CondAny:
		return "ANY"
	case CondEq:
		return "EQ"
	case CondLt:
		return "LT"
	case CondLe:
		return "LE"
	case CondGt:
		return "GT"
	case CondGe:
		return "GE"
	case CondRange:
		return "RANGE"
	case CondSet:
		return "SET"
	case CondAllSet:
		return "ALLSET"
	case CondEmpty:
		return "EMPTY"
	case CondLike:
		return "LIKE"
	case CondDWithin:
		return "DWITHIN"
	default:
		return "?"
	}
}

func CondFromString(s string) (CondType, error) {
	switch s {
	case "ANY", "any":
		return CondAny, nil
	case "EQ", "eq", "=", "==":
		return CondEq, nil
	case "LT", "lt", "<":
		return CondLt, nil
	case "LE", "le", "<=":
		return CondLe, nil
	case "GT", "gt", ">":
		return CondGt, nil
	case "GE", "ge", ">=":
		return CondGe, nil
	case "RANGE", "range":
		return CondRange, nil
	case "SET", "set", "IN", "in":
		return CondSet, nil
	case "ALLSET", "allset":
		return CondAllSet, nil
	case "EMPTY", "empty":
		return CondEmpty, nil
	case "LIKE", "like":
		return CondLike, nil
	case "DWITHIN", "dwithin":
		return CondDWithin, nil
	default:
		return CondAny, dberrors.Parse("unknown condition %q", s)
	}
}

type OpType int

const (
	OpAnd OpType = iota
	OpOr
	OpNot
)

func (o OpType) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpNot:
		return "NOT"
	default:
		return "?"
	}
}

func OpFromString(s string) (OpType, error) {
	switch s {
	case "AND", "and", "":
		return OpAnd, nil
	case "OR", "or":
		return OpOr, nil
	case "NOT", "not", "AND NOT", "and not":
		return OpNot, nil
	default:
		return OpAnd, dberrors.Parse("unknown operation %q", s)
	}
}
