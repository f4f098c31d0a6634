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

// Package aggregation holds the result model the aggregators produce.
package aggregation

import (
	"github.com/weaviate/kestrel/entities/payload"
)

// Result is the outcome of one aggregation entry of a query.
type Result struct {
	Type   string             `json:"type"`
	Fields []string           `json:"fields"`
	Value  *float64           `json:"value,omitempty"`
	Facets []FacetRow         `json:"facets,omitempty"`
	// Distinct holds the distinct key list; composite keys keep their
	// per-field values.
	Distinct []payload.Variants `json:"distinct,omitempty"`
}

// FacetRow is one group of a FACET aggregation.
type FacetRow struct {
	Values payload.Variants `json:"values"`
	Count  int              `json:"count"`
}

func ValueResult(typ string, fields []string, v float64) Result {
	return Result{Type: typ, Fields: fields, Value: &v}
}
