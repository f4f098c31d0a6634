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

package fulltext

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/kestrel/adapters/repos/db/indexes"
	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/idset"
	"github.com/weaviate/kestrel/entities/payload"
	"github.com/weaviate/kestrel/entities/query"
)

// FastIndex is the full-text index over one or more string fields. It
// satisfies the generic Index capability so the namespace can manage it
// uniformly, and exposes Select for the ranked path.
type FastIndex struct {
	def    indexes.Def
	cfg    Config
	holder *holder
	logger logrus.FieldLogger
}

func NewFastIndex(def indexes.Def, cfg Config, fields []string, logger logrus.FieldLogger) *FastIndex {
	cfg = cfg.WithDefaults()
	if len(fields) == 0 {
		fields = []string{def.Name}
	}
	return &FastIndex{
		def:    def,
		cfg:    cfg,
		holder: newHolder(&cfg, fields),
		logger: logger.WithField("action", "fulltext"),
	}
}

func (ft *FastIndex) Name() string       { return ft.def.Name }
func (ft *FastIndex) Def() indexes.Def   { return ft.def }
func (ft *FastIndex) Opts() indexes.Opts { return ft.def.Opts }

// Fields returns the indexed field names in mask order.
func (ft *FastIndex) Fields() []string { return ft.holder.fields }

// Upsert stages the row's texts; one value per indexed field, or any
// number of values for a single-field index.
func (ft *FastIndex) Upsert(vals payload.Variants, _ payload.Value, rowID int) error {
	texts := make([]string, len(ft.holder.fields))
	if len(ft.holder.fields) == 1 {
		var parts []string
		for _, v := range vals {
			if v.Kind() == payload.KindString {
				parts = append(parts, v.Str())
			} else if !v.IsNull() {
				parts = append(parts, v.String())
			}
		}
		texts[0] = strings.Join(parts, " ")
	} else {
		for i := range texts {
			if i < len(vals) && !vals[i].IsNull() {
				texts[i] = vals[i].String()
			}
		}
	}
	ft.holder.stage(rowID, texts)
	return nil
}

func (ft *FastIndex) Delete(_ payload.Variants, _ payload.Value, rowID int) error {
	ft.holder.retire(rowID)
	return nil
}

// Select parses and runs a search DSL, returning rows ranked descending.
func (ft *FastIndex) Select(ctx context.Context, dsl string) (MergeData, error) {
	if err := ft.CommitCtx(ctx); err != nil {
		return MergeData{}, err
	}
	terms, err := parseDSL(dsl, ft.holder.fields, &ft.cfg)
	if err != nil {
		return MergeData{}, err
	}
	return ft.holder.selectTerms(ctx, terms)
}

// SelectKey serves the generic index surface: only CondEq (match) is
// meaningful for a text index.
func (ft *FastIndex) SelectKey(ctx context.Context, keys payload.Variants, cond query.CondType,
	_ int, _ indexes.SelectOpts,
) (indexes.SelectKeyResults, error) {
	if cond != query.CondEq || len(keys) != 1 || keys[0].Kind() != payload.KindString {
		return nil, dberrors.Params("fulltext index %q supports only text match", ft.def.Name)
	}
	md, err := ft.Select(ctx, keys[0].Str())
	if err != nil {
		return nil, err
	}
	ids := idset.New()
	for _, m := range md.Items {
		ids.Add(m.RowID, idset.AddUnordered)
	}
	ids.Commit()
	return indexes.SelectKeyResults{{IDs: ids}}, nil
}

// HasPending reports whether staged documents await a commit.
func (ft *FastIndex) HasPending() bool {
	return len(ft.holder.pending) > 0
}

// CommitCtx builds pending documents into the search structures.
func (ft *FastIndex) CommitCtx(ctx context.Context) error {
	pending := len(ft.holder.pending)
	if pending == 0 {
		return nil
	}
	start := time.Now()
	if err := ft.holder.commit(ctx); err != nil {
		return err
	}
	ft.logger.WithFields(logrus.Fields{
		"docs":     pending,
		"words":    len(ft.holder.words),
		"took":     time.Since(start).String(),
	}).Debug("fulltext commit")
	return nil
}

func (ft *FastIndex) Commit() {
	if err := ft.CommitCtx(context.Background()); err != nil {
		ft.logger.WithError(err).Error("fulltext commit failed")
	}
}

func (ft *FastIndex) MakeSortOrders(context.Context) []int { return nil }
func (ft *FastIndex) SortID() int                          { return -1 }
func (ft *FastIndex) SetSortID(int)                        {}
func (ft *FastIndex) UpdateSortedIDs(context.Context)      {}

func (ft *FastIndex) MemStat() indexes.MemStat {
	return indexes.MemStat{Name: ft.def.Name, UniqKeysCount: len(ft.holder.words)}
}
