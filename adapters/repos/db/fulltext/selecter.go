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
	"math"
	"sort"

	"github.com/weaviate/kestrel/entities/dberrors"
	"github.com/weaviate/kestrel/entities/idset"
	"github.com/weaviate/kestrel/entities/query"
)

// MergeInfo is one ranked row of a full-text selection.
type MergeInfo struct {
	RowID   int
	Proc    int
	Field   int
	Matched int
}

// MergeData is the ranked result, sorted by rank descending.
type MergeData struct {
	Items   []MergeInfo
	MaxRank int
}

// rawResult is one matched word of a term variant.
type rawResult struct {
	rels    *idset.RelSet
	proc    int
	pattern string
}

// minPrefixLen: shorter patterns match exactly even when prefix/suffix
// flags are set, keeping one-letter wildcards from exploding.
const minPrefixLen = 2

const statusExcluded = -1

// pos2rank attenuates by position piecewise-linearly: hits at the start
// of a field rank above hits deep inside it.
func pos2rank(pos int) float64 {
	switch {
	case pos <= 10:
		return 1.0 - float64(pos)/100.0
	case pos <= 100:
		return 0.9 - float64(pos)/1000.0
	case pos <= 1000:
		return 0.8 - float64(pos)/10000.0
	case pos <= 10000:
		return 0.7 - float64(pos)/100000.0
	case pos <= 100000:
		return 0.6 - float64(pos)/1000000.0
	default:
		return 0.5
	}
}

// idf dampens words that appear in most documents.
func idf(totalDocs, matchedDocs int) float64 {
	if matchedDocs == 0 || totalDocs == 0 {
		return 0
	}
	v := math.Log(float64(totalDocs-matchedDocs+1)/float64(matchedDocs)) / math.Log(1+float64(totalDocs))
	if v < 0 {
		return 0
	}
	return v
}

// bm25score is the classic per-field BM25 term score with k1=2, b=0.75.
func bm25score(termCountInDoc, docWordsCount, avgDocWords float64) float64 {
	const k1, b = 2.0, 0.75
	if avgDocWords <= 0 {
		avgDocWords = 1
	}
	return termCountInDoc * (k1 + 1.0) / (termCountInDoc + k1*(1.0-b+b*docWordsCount/avgDocWords))
}

// bound folds a raw score component into its weighted form:
// (1-weight) + score*weight*boost.
func bound(v, weight, boost float64) float64 {
	return (1.0 - weight) + v*weight*boost
}

// Select runs the parsed DSL against the holder and returns the merged,
// ranked rows.
func (h *holder) selectTerms(ctx context.Context, terms []ftTerm) (MergeData, error) {
	var md MergeData
	if len(h.vdocs) == 0 {
		return md, nil
	}
	raws := make([][]rawResult, len(terms))
	for i, term := range terms {
		if err := ctx.Err(); err != nil {
			return md, dberrors.FromContext(ctx)
		}
		raws[i] = h.lookupTerm(term)
	}
	return h.merge(ctx, terms, raws)
}

// lookupTerm resolves one term into posting lists: suffix-array walks for
// every variant plus typo-map hits.
func (h *holder) lookupTerm(term ftTerm) []rawResult {
	found := map[int]int{} // wordID -> best proc
	variants := buildVariants(term.pattern, term.opts, h.cfg)
	if term.opts.op != query.OpNot {
		variants = append(variants, synonymVariants(term.pattern, h.cfg)...)
	}
	for _, v := range variants {
		h.lookupVariant(v, term.opts, found)
	}
	if !term.opts.exact && h.cfg.MaxTypos > 0 {
		h.lookupTypos(term.pattern, found)
	}
	out := make([]rawResult, 0, len(found))
	for wordID, proc := range found {
		out = append(out, rawResult{rels: h.words[wordID].vids, proc: proc, pattern: h.words[wordID].text})
	}
	// higher-relevancy words first so the first-match path sees the best
	// candidate of each row
	sort.Slice(out, func(i, j int) bool { return out[i].proc > out[j].proc })
	return out
}

func (h *holder) lookupVariant(v variant, opts termOpts, found map[int]int) {
	pattern := v.pattern
	if pattern == "" {
		return
	}
	pref, suff := opts.pref, opts.suff
	if len([]rune(pattern)) < minPrefixLen {
		pref, suff = false, false
	}
	matchLen := len(pattern)
	h.suffixes.lookup(pattern, func(m suffixMatch) bool {
		if m.leadingLen > 0 && !suff {
			return true
		}
		if m.trailingLen > 0 && !pref && !suff {
			return true
		}
		if h.words[m.wordID].virtual && (m.leadingLen > 0 || m.trailingLen > 0) {
			return true
		}
		matchDif := m.leadingLen + m.trailingLen
		minProc := prefixMinProc
		if m.leadingLen > 0 {
			minProc = suffixMinProc
		}
		proc := v.proc - h.cfg.PartialMatchDecrease*matchDif/maxInt(matchLen, 3)
		if proc < minProc {
			proc = minProc
		}
		if cur, ok := found[m.wordID]; !ok || proc > cur {
			found[m.wordID] = proc
		}
		return true
	})
}

func (h *holder) lookupTypos(pattern string, found map[int]int) {
	maxTyposInWord := h.cfg.MaxTyposInWord()
	mktypos(pattern, maxTyposInWord, h.cfg.MaxTypoLen, func(typo string, level int) {
		h.typos.lookup(typo, level, maxTyposInWord, func(e typoEntry, tcount int) {
			if tcount > h.cfg.MaxTypos {
				return
			}
			wordID := int(e.wordID)
			if h.words[wordID].virtual {
				return
			}
			wordLen := len([]rune(h.words[wordID].text))
			proc := typoProc - tcount*typoStepProc/maxInt((wordLen-tcount)/3, 1)
			if tcount == 0 {
				// not a typo at all; the variant path already found it
				return
			}
			if cur, ok := found[wordID]; !ok || proc > cur {
				found[wordID] = proc
			}
		})
	})
}

// mergedRel tracks the positional state of one merged row between terms.
type mergedRel struct {
	cur  *idset.IdRel
	rank int
	qpos int
}

// merge folds per-term results into ranked rows: OpAnd intersects, OpOr
// unions, OpNot excludes; adjacent AND terms accumulate a word-distance
// bonus.
func (h *holder) merge(ctx context.Context, terms []ftTerm, raws [][]rawResult) (MergeData, error) {
	var md MergeData
	totalDocs := h.activeDocs
	statuses := make([]int32, len(h.vdocs))
	idoffsets := make([]int32, len(h.vdocs))
	var merged []MergeInfo
	var mergedRd []mergedRel
	simple := len(terms) == 1

	hasBeenAnd := false
	for ti := range terms {
		if err := ctx.Err(); err != nil {
			return md, dberrors.FromContext(ctx)
		}
		term := terms[ti]
		var curExists []bool
		if !simple {
			curExists = make([]bool, len(h.vdocs))
		}
		for _, r := range raws[ti] {
			h.mergeIteration(term, int32(ti), r, totalDocs, statuses, idoffsets,
				&merged, &mergedRd, curExists, hasBeenAnd, simple)
		}
		if term.opts.op == query.OpAnd && curExists != nil {
			hasBeenAnd = true
			for mi := range merged {
				vid := h.rowToVdoc[merged[mi].RowID]
				if curExists[vid] || statuses[vid] == statusExcluded || merged[mi].Proc == 0 {
					continue
				}
				merged[mi].Proc = 0
				statuses[vid] = 0
			}
		}
	}

	// full-doc-match boost and rank bounds
	out := merged[:0]
	for _, m := range merged {
		if m.Proc == 0 {
			continue
		}
		vid := h.rowToVdoc[m.RowID]
		if m.Field < len(h.vdocs[vid].wordsCount) &&
			h.vdocs[vid].wordsCount[m.Field] == len(terms) {
			m.Proc = int(float64(m.Proc) * h.cfg.FullMatchBoost)
		}
		if m.Proc > md.MaxRank {
			md.MaxRank = m.Proc
		}
		out = append(out, m)
	}
	merged = out

	minProc := int(h.cfg.MinRelevancy * 100)
	scale := 1.0
	if md.MaxRank > 255 {
		scale = 255.0 / float64(md.MaxRank)
		md.MaxRank = 255
	}
	final := merged[:0]
	for _, m := range merged {
		m.Proc = int(float64(m.Proc) * scale)
		if m.Proc < int(float64(minProc)*scale) {
			continue
		}
		final = append(final, m)
	}
	sort.SliceStable(final, func(i, j int) bool { return final[i].Proc > final[j].Proc })
	if len(final) > h.cfg.MergeLimit {
		final = final[:h.cfg.MergeLimit]
	}
	md.Items = final
	return md, nil
}

func (h *holder) mergeIteration(term ftTerm, rawResIndex int32, r rawResult, totalDocs int,
	statuses, idoffsets []int32, merged *[]MergeInfo, mergedRd *[]mergedRel,
	curExists []bool, hasBeenAnd, simple bool,
) {
	termIDF := idf(totalDocs, r.rels.Len())
	r.rels.ForEach(func(rel *idset.IdRel) bool {
		vid := rel.ID
		if vid >= len(statuses) {
			return true
		}
		status := statuses[vid]
		if status == statusExcluded || (hasBeenAnd && status == 0) {
			return true
		}
		if term.opts.op == query.OpNot {
			if !simple && status != 0 {
				(*merged)[idoffsets[vid]].Proc = 0
			}
			statuses[vid] = statusExcluded
			return true
		}
		vd := &h.vdocs[vid]
		if !vd.active {
			return true
		}

		field, termRank := h.termRank(term, r, rel, vd, termIDF)
		if termRank == 0 {
			return true
		}

		if !simple && status != 0 {
			// 2nd and further terms: accumulate rank and word distance
			off := idoffsets[vid]
			cur := &(*mergedRd)[off]
			distance := 0
			normDist := 1.0
			if cur.cur != nil && cur.qpos != term.opts.qpos {
				distance = cur.cur.Distance(rel, math.MaxInt32)
				normDist = bound(1.0/float64(maxInt(distance, 1)), h.cfg.DistanceWeight, h.cfg.DistanceBoost)
			}
			finalRank := int(normDist * float64(termRank))
			if distance <= term.opts.distance && (!curExists[vid] || finalRank > cur.rank) {
				if curExists[vid] {
					(*merged)[off].Proc -= cur.rank
				} else {
					(*merged)[off].Matched++
					curExists[vid] = true
				}
				(*merged)[off].Proc += finalRank
				cur.rank = finalRank
				cur.cur = rel
			}
			return true
		}
		if len(*merged) < h.cfg.MergeLimit && !hasBeenAnd && status == 0 {
			info := MergeInfo{RowID: vd.rowID, Proc: termRank, Matched: 1, Field: field}
			*merged = append(*merged, info)
			statuses[vid] = rawResIndex + 1
			idoffsets[vid] = int32(len(*merged) - 1)
			if curExists != nil {
				curExists[vid] = true
			}
			if !simple {
				*mergedRd = append(*mergedRd, mergedRel{cur: rel, rank: termRank, qpos: term.opts.qpos})
			}
		}
		return true
	})
}

// termRank scores one posting: the best field wins, with optional
// summation of the remaining fields' ranks by a geometric ratio.
func (h *holder) termRank(term ftTerm, r rawResult, rel *idset.IdRel, vd *vdoc, termIDF float64) (int, int) {
	bestField := 0
	termRank := 0.0
	dontSkipCurTermRank := false
	var ranksInFields []float64
	for f := 0; f < len(h.fields); f++ {
		if rel.FieldsMask&(1<<uint(f)) == 0 {
			continue
		}
		fboost := 1.0
		if f < len(term.opts.fieldBoosts) {
			fboost = term.opts.fieldBoosts[f]
		}
		if fboost == 0 {
			continue
		}
		fldCfg := h.cfg.fieldConfig(h.fields[f])
		bm25 := termIDF * bm25score(float64(rel.WordsInField(f)), float64(vd.wordsCount[f]), h.avgWordsCount[f])
		normBm25 := bound(bm25, fldCfg.BM25Weight, fldCfg.BM25Boost)
		positionRank := bound(pos2rank(rel.MinPositionInField(f)), fldCfg.PositionWeight, fldCfg.PositionBoost)
		termLenBoost := bound(term.opts.termLenBoost, fldCfg.TermLenWeight, fldCfg.TermLenBoost)
		rank := fboost * fldCfg.Boost * float64(r.proc) * normBm25 * term.opts.boost * termLenBoost * positionRank
		switch {
		case rank > termRank:
			if dontSkipCurTermRank {
				ranksInFields = append(ranksInFields, termRank)
			}
			bestField = f
			termRank = rank
			dontSkipCurTermRank = fldCfg.NeedSumRank
		case !dontSkipCurTermRank && fldCfg.NeedSumRank && rank == termRank:
			bestField = f
			dontSkipCurTermRank = true
		case rank != 0 && fldCfg.NeedSumRank:
			ranksInFields = append(ranksInFields, rank)
		}
	}
	if termRank == 0 {
		return 0, 0
	}
	if ratio := h.cfg.SumRanksByFieldsRatio; ratio > 0 && len(ranksInFields) > 0 {
		sort.Float64s(ranksInFields)
		k := ratio
		for _, fr := range ranksInFields {
			termRank += k * fr
			k *= ratio
		}
	}
	return bestField, int(termRank)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
