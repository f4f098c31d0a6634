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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weaviate/kestrel/entities/idset"
)

// wordEntry is one distinct token of the corpus with its posting list.
// Virtual entries come from number-to-word expansion and only match
// exact lookups.
type wordEntry struct {
	text    string
	vids    *idset.RelSet
	virtual bool
}

// vdoc mirrors one indexed row inside the full-text subsystem. Updates
// retire the old vdoc and allocate a new one, so posting lists never need
// eager rewrites.
type vdoc struct {
	rowID             int
	active            bool
	wordsCount        []int
	mostFreqWordCount []int
}

// pendingDoc is a row waiting for the next commit.
type pendingDoc struct {
	rowID  int
	fields []string
}

// holder owns every search structure of one fast index. Readers access it
// under the namespace read lock; the committing writer publishes new
// structures under the write lock.
type holder struct {
	cfg    *Config
	fields []string
	tok    *tokenizer

	words   []wordEntry
	wordIDs map[string]int

	suffixes *suffixArray
	typos    *typosMap

	vdocs         []vdoc
	rowToVdoc     map[int]int
	activeDocs    int
	avgWordsCount []float64

	pending []pendingDoc
}

func newHolder(cfg *Config, fields []string) *holder {
	h := &holder{
		cfg:           cfg,
		fields:        fields,
		tok:           newTokenizer(cfg),
		wordIDs:       map[string]int{},
		typos:         newTyposMap(),
		rowToVdoc:     map[int]int{},
		avgWordsCount: make([]float64, len(fields)),
	}
	h.suffixes = newSuffixArray(func(id int) string { return h.words[id].text })
	return h
}

// stage queues a row for the next commit, retiring any previous version.
func (h *holder) stage(rowID int, fieldTexts []string) {
	h.retire(rowID)
	h.pending = append(h.pending, pendingDoc{rowID: rowID, fields: fieldTexts})
}

// retire deactivates the vdoc of a deleted or replaced row.
func (h *holder) retire(rowID int) {
	if vid, ok := h.rowToVdoc[rowID]; ok {
		h.vdocs[vid].active = false
		h.activeDocs--
		delete(h.rowToVdoc, rowID)
	}
	for i := range h.pending {
		if h.pending[i].rowID == rowID {
			h.pending = append(h.pending[:i], h.pending[i+1:]...)
			break
		}
	}
}

// tokenized is the per-document outcome of the parallel tokenize step.
type tokenized struct {
	doc    pendingDoc
	fields [][]token
}

// commit tokenizes pending docs in parallel, folds the shards into the
// word map, extends the suffix array and the typo map with the new words
// and finalizes the posting lists.
func (h *holder) commit(ctx context.Context) error {
	if len(h.pending) == 0 {
		return nil
	}
	docs := h.pending
	h.pending = nil

	toks := make([]tokenized, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(commitWorkers())
	for i := range docs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := tokenized{doc: docs[i], fields: make([][]token, len(docs[i].fields))}
			for f, text := range docs[i].fields {
				t.fields[f] = h.tok.tokenize(text)
			}
			toks[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// single-writer fold: deterministic word-id assignment
	firstNewWord := len(h.words)
	var touched []*idset.RelSet
	for _, t := range toks {
		vid := len(h.vdocs)
		vd := vdoc{
			rowID:             t.doc.rowID,
			active:            true,
			wordsCount:        make([]int, len(h.fields)),
			mostFreqWordCount: make([]int, len(h.fields)),
		}
		for f, tokens := range t.fields {
			vd.wordsCount[f] = len(tokens)
			freq := map[string]int{}
			for _, tk := range tokens {
				rels := h.wordRels(tk.text, false, &touched)
				rels.Add(vid, tk.pos, f)
				freq[tk.text]++
				if freq[tk.text] > vd.mostFreqWordCount[f] {
					vd.mostFreqWordCount[f] = freq[tk.text]
				}
				if h.cfg.EnableNumbersSearch {
					for _, vw := range expandNumber(tk.text) {
						h.wordRels(vw, true, &touched).Add(vid, tk.pos, f)
					}
				}
			}
		}
		h.vdocs = append(h.vdocs, vd)
		h.rowToVdoc[t.doc.rowID] = vid
		h.activeDocs++
	}

	// suffix array and typos only need the new words; finalization of the
	// posting lists can overlap with both builds
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for id := firstNewWord; id < len(h.words); id++ {
			h.suffixes.addWord(id)
		}
		h.suffixes.build()
	}()
	go func() {
		defer wg.Done()
		for id := firstNewWord; id < len(h.words); id++ {
			if !h.words[id].virtual {
				h.typos.addWord(id, h.words[id].text, h.cfg)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for _, rels := range touched {
			rels.Commit()
		}
	}()
	wg.Wait()

	h.recalcAvgWordsCount()
	return ctx.Err()
}

func (h *holder) wordRels(text string, virtual bool, touched *[]*idset.RelSet) *idset.RelSet {
	id, ok := h.wordIDs[text]
	if !ok {
		id = len(h.words)
		h.words = append(h.words, wordEntry{text: text, vids: idset.NewRelSet(), virtual: virtual})
		h.wordIDs[text] = id
	}
	rels := h.words[id].vids
	if touched != nil {
		*touched = append(*touched, rels)
	}
	return rels
}

func (h *holder) recalcAvgWordsCount() {
	totals := make([]float64, len(h.fields))
	n := 0
	for i := range h.vdocs {
		if !h.vdocs[i].active {
			continue
		}
		n++
		for f, c := range h.vdocs[i].wordsCount {
			totals[f] += float64(c)
		}
	}
	for f := range totals {
		if n > 0 {
			h.avgWordsCount[f] = totals[f] / float64(n)
		} else {
			h.avgWordsCount[f] = 0
		}
	}
}

// clear drops every structure; used by namespace truncate.
func (h *holder) clear() {
	h.words = nil
	h.wordIDs = map[string]int{}
	h.suffixes = newSuffixArray(func(id int) string { return h.words[id].text })
	h.typos = newTyposMap()
	h.vdocs = nil
	h.rowToVdoc = map[int]int{}
	h.activeDocs = 0
	h.pending = nil
	for f := range h.avgWordsCount {
		h.avgWordsCount[f] = 0
	}
}
