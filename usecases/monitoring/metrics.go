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

// Package monitoring exposes the engine's prometheus metrics. A nil
// *Metrics is valid and records nothing, so wiring stays optional.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	QueryDuration    *prometheus.HistogramVec
	ItemModifies     *prometheus.CounterVec
	IndexSelects     *prometheus.CounterVec
	FulltextCommits  prometheus.Histogram
	TxCopies         prometheus.Counter
	StorageFlushes   prometheus.Counter
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "query_duration_seconds",
			Help:      "Select/update/delete execution time per namespace",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"namespace", "kind"}),
		ItemModifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "item_modifies_total",
			Help:      "Item mutations per namespace and mode",
		}, []string{"namespace", "mode"}),
		IndexSelects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "index_selects_total",
			Help:      "SelectKey calls per index, split by answer form",
		}, []string{"index", "form"}),
		FulltextCommits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "fulltext_commit_seconds",
			Help:      "Full-text commit pipeline duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		TxCopies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "tx_namespace_copies_total",
			Help:      "Transactions committed via copy-and-swap",
		}),
		StorageFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "storage_flushes_total",
			Help:      "Background storage flushes",
		}),
	}
	reg.MustRegister(m.QueryDuration, m.ItemModifies, m.IndexSelects,
		m.FulltextCommits, m.TxCopies, m.StorageFlushes)
	return m
}

func (m *Metrics) ObserveQuery(namespace, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(namespace, kind).Observe(d.Seconds())
}

func (m *Metrics) CountModify(namespace, mode string) {
	if m == nil {
		return
	}
	m.ItemModifies.WithLabelValues(namespace, mode).Inc()
}

func (m *Metrics) CountIndexSelect(index, form string) {
	if m == nil {
		return
	}
	m.IndexSelects.WithLabelValues(index, form).Inc()
}

func (m *Metrics) ObserveFulltextCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.FulltextCommits.Observe(d.Seconds())
}

func (m *Metrics) CountTxCopy() {
	if m == nil {
		return
	}
	m.TxCopies.Inc()
}

func (m *Metrics) CountStorageFlush() {
	if m == nil {
		return
	}
	m.StorageFlushes.Inc()
}
