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

// Package fulltext implements the fast full-text index: tokenization into
// a suffix-array word map, typo/translit/layout/synonym variants and
// BM25 + positional ranking merged across DSL terms.
package fulltext

import "runtime"

// Synonym maps query tokens onto the alternatives that should match too.
type Synonym struct {
	Tokens       []string `json:"tokens" yaml:"tokens"`
	Alternatives []string `json:"alternatives" yaml:"alternatives"`
}

// FieldConfig weights one indexed field.
type FieldConfig struct {
	Boost          float64 `json:"boost" yaml:"boost"`
	BM25Weight     float64 `json:"bm25_weight" yaml:"bm25_weight"`
	BM25Boost      float64 `json:"bm25_boost" yaml:"bm25_boost"`
	PositionWeight float64 `json:"position_weight" yaml:"position_weight"`
	PositionBoost  float64 `json:"position_boost" yaml:"position_boost"`
	TermLenWeight  float64 `json:"term_len_weight" yaml:"term_len_weight"`
	TermLenBoost   float64 `json:"term_len_boost" yaml:"term_len_boost"`
	NeedSumRank    bool    `json:"need_sum_rank" yaml:"need_sum_rank"`
}

// Config mirrors the tunables of the fast index. Zero numeric and string
// values and a nil Stemmers list are replaced by defaults in WithDefaults;
// the boolean switches are taken as given.
type Config struct {
	MergeLimit          int      `json:"merge_limit" yaml:"merge_limit"`
	Stemmers            []string `json:"stemmers" yaml:"stemmers"`
	EnableTranslit      bool     `json:"enable_translit" yaml:"enable_translit"`
	EnableKbLayout      bool     `json:"enable_kb_layout" yaml:"enable_kb_layout"`
	EnableNumbersSearch bool     `json:"enable_numbers_search" yaml:"enable_numbers_search"`
	StopWords           []string `json:"stop_words" yaml:"stop_words"`
	Synonyms            []Synonym `json:"synonyms" yaml:"synonyms"`
	ExtraWordSymbols    string   `json:"extra_word_symbols" yaml:"extra_word_symbols"`
	LogLevel            int      `json:"log_level" yaml:"log_level"`

	DistanceWeight float64 `json:"distance_weight" yaml:"distance_weight"`
	DistanceBoost  float64 `json:"distance_boost" yaml:"distance_boost"`

	MinRelevancy         float64 `json:"min_relevancy" yaml:"min_relevancy"`
	FullMatchBoost       float64 `json:"full_match_boost" yaml:"full_match_boost"`
	PartialMatchDecrease int     `json:"partial_match_decrease" yaml:"partial_match_decrease"`

	MaxTypos   int `json:"max_typos" yaml:"max_typos"`
	MaxTypoLen int `json:"max_typo_len" yaml:"max_typo_len"`

	// MinTermLenForStemming skips stemming for very short terms.
	MinTermLenForStemming int `json:"min_stem_len" yaml:"min_stem_len"`

	SumRanksByFieldsRatio float64 `json:"sum_ranks_by_fields_ratio" yaml:"sum_ranks_by_fields_ratio"`

	Fields map[string]FieldConfig `json:"fields" yaml:"fields"`
}

func DefaultConfig() Config {
	return Config{
		MergeLimit:            20000,
		Stemmers:              []string{"en", "ru"},
		EnableTranslit:        true,
		EnableKbLayout:        true,
		ExtraWordSymbols:      "-/+",
		DistanceWeight:        0.5,
		DistanceBoost:         1.0,
		MinRelevancy:          0.05,
		FullMatchBoost:        1.1,
		PartialMatchDecrease:  15,
		MaxTypos:              2,
		MaxTypoLen:            15,
		MinTermLenForStemming: 3,
	}
}

func defaultFieldConfig() FieldConfig {
	return FieldConfig{
		Boost:          1.0,
		BM25Weight:     0.1,
		BM25Boost:      1.0,
		PositionWeight: 0.1,
		PositionBoost:  1.0,
		TermLenWeight:  0.3,
		TermLenBoost:   1.0,
	}
}

// WithDefaults fills unset values.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MergeLimit == 0 {
		c.MergeLimit = d.MergeLimit
	}
	if c.Stemmers == nil {
		c.Stemmers = d.Stemmers
	}
	if c.ExtraWordSymbols == "" {
		c.ExtraWordSymbols = d.ExtraWordSymbols
	}
	if c.DistanceWeight == 0 {
		c.DistanceWeight = d.DistanceWeight
	}
	if c.DistanceBoost == 0 {
		c.DistanceBoost = d.DistanceBoost
	}
	if c.MinRelevancy == 0 {
		c.MinRelevancy = d.MinRelevancy
	}
	if c.FullMatchBoost == 0 {
		c.FullMatchBoost = d.FullMatchBoost
	}
	if c.PartialMatchDecrease == 0 {
		c.PartialMatchDecrease = d.PartialMatchDecrease
	}
	if c.MaxTypos == 0 {
		c.MaxTypos = d.MaxTypos
	}
	if c.MaxTypoLen == 0 {
		c.MaxTypoLen = d.MaxTypoLen
	}
	if c.MinTermLenForStemming == 0 {
		c.MinTermLenForStemming = d.MinTermLenForStemming
	}
	return c
}

// MaxTyposInWord is the per-word bound derived from MaxTypos: half the
// budget rounded up.
func (c *Config) MaxTyposInWord() int {
	return (c.MaxTypos + 1) / 2
}

// fieldConfig resolves the weighting of a field by name.
func (c *Config) fieldConfig(name string) FieldConfig {
	if fc, ok := c.Fields[name]; ok {
		if fc.Boost == 0 {
			fc.Boost = 1.0
		}
		if fc.BM25Boost == 0 {
			fc.BM25Boost = 1.0
		}
		if fc.PositionBoost == 0 {
			fc.PositionBoost = 1.0
		}
		if fc.TermLenBoost == 0 {
			fc.TermLenBoost = 1.0
		}
		return fc
	}
	return defaultFieldConfig()
}

// commitWorkers bounds the tokenization parallelism.
func commitWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}
