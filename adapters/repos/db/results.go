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

package db

import (
	"encoding/json"
	"strconv"

	"github.com/weaviate/kestrel/entities/aggregation"
	"github.com/weaviate/kestrel/entities/payload"
)

// ResultRow is one matched row with its optional full-text rank and the
// joined sub-results keyed by join index.
type ResultRow struct {
	RowID  int
	Rank   int
	Joined map[int]*QueryResults
}

// ExplainEntry reports how one conjunct was served.
type ExplainEntry struct {
	Field   string `json:"field"`
	Cond    string `json:"cond"`
	Method  string `json:"method"`
	Keys    int    `json:"keys"`
	Matched int    `json:"matched"`
}

// QueryResults is the outcome of one select: matched rows in final order,
// aggregation results, and the total count when requested.
type QueryResults struct {
	ns           *Namespace
	Rows         []ResultRow
	Aggregations []aggregation.Result
	TotalCount   int
	Explain      []ExplainEntry
	selectFilter []string
}

func (qr *QueryResults) Count() int { return len(qr.Rows) }

// ItemJSON renders row i as a JSON document, honoring the query's
// select-filter and attaching joined rows under
// "joined_<namespace>_<join index>".
func (qr *QueryResults) ItemJSON(i int) ([]byte, error) {
	row := qr.Rows[i]
	doc, err := qr.ns.rowJSON(row.RowID, qr.selectFilter)
	if err != nil {
		return nil, err
	}
	if len(row.Joined) == 0 {
		return doc, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, err
	}
	for joinIdx, sub := range row.Joined {
		var items []json.RawMessage
		for j := range sub.Rows {
			d, err := sub.ItemJSON(j)
			if err != nil {
				return nil, err
			}
			items = append(items, d)
		}
		obj["joined_"+sub.ns.name+"_"+strconv.Itoa(joinIdx)] = items
	}
	return json.Marshal(obj)
}

// ItemValues returns the payload values of one field of row i.
func (qr *QueryResults) ItemValues(i int, field string) payload.Variants {
	return qr.ns.fieldValuesByName(qr.Rows[i].RowID, field)
}
