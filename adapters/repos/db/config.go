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
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config tunes one database instance; per-namespace settings nest under
// it. Zero values take the defaults below.
type Config struct {
	ServerID int16  `yaml:"server_id"`
	Path     string `yaml:"path"`

	Namespace NamespaceConfig `yaml:"namespace"`
}

// NamespaceConfig carries the per-namespace engine tunables.
type NamespaceConfig struct {
	// OptimizationTimeout is how long after the last update the
	// background optimizer waits before building sort orders.
	OptimizationTimeout time.Duration `yaml:"optimization_timeout"`
	// OptimizationSortWorkers bounds the parallel sort-order builds.
	OptimizationSortWorkers int `yaml:"optimization_sort_workers"`

	// TxSizeToAlwaysCopy forces transaction commits at or above this step
	// count onto the copy-and-swap path.
	TxSizeToAlwaysCopy int `yaml:"tx_size_to_always_copy"`
	// StartCopyPolicyTxSize enables the copy heuristic from this step
	// count on.
	StartCopyPolicyTxSize int `yaml:"start_copy_policy_tx_size"`
	// CopyPolicyMultiplier: copy when the namespace holds at most
	// multiplier*steps rows.
	CopyPolicyMultiplier int `yaml:"copy_policy_multiplier"`

	// MaxIterationsIdSetPreResult is the inner-join pre-result size above
	// which prepareJoins logs a debug message; the pre-result is used
	// whatever its size.
	MaxIterationsIdSetPreResult int `yaml:"max_iterations_idset_preresult"`

	WALSize int `yaml:"wal_size"`

	StorageSoftFlushLimit int `yaml:"storage_soft_flush_limit"`
}

const (
	// MaxIterationsForPreResultStoreValues is an inner-join pre-select size
	// bound that no code path consults: prepareJoins pre-selects the right
	// side of every inner join, whatever its size.
	MaxIterationsForPreResultStoreValues = 200
	// maxIterationsScaleForInnerJoinOptimization is a multiplier of the
	// left side's estimate that no code path consults either.
	maxIterationsScaleForInnerJoinOptimization = 100
)

func DefaultConfig() Config {
	return Config{Namespace: DefaultNamespaceConfig()}
}

func DefaultNamespaceConfig() NamespaceConfig {
	return NamespaceConfig{
		OptimizationTimeout:         800 * time.Millisecond,
		OptimizationSortWorkers:     4,
		TxSizeToAlwaysCopy:          100000,
		StartCopyPolicyTxSize:       10000,
		CopyPolicyMultiplier:        5,
		MaxIterationsIdSetPreResult: 20000,
	}
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	if cfg.Namespace.OptimizationTimeout == 0 {
		cfg.Namespace.OptimizationTimeout = DefaultNamespaceConfig().OptimizationTimeout
	}
	if cfg.Namespace.OptimizationSortWorkers == 0 {
		cfg.Namespace.OptimizationSortWorkers = DefaultNamespaceConfig().OptimizationSortWorkers
	}
	if cfg.Namespace.TxSizeToAlwaysCopy == 0 {
		cfg.Namespace.TxSizeToAlwaysCopy = DefaultNamespaceConfig().TxSizeToAlwaysCopy
	}
	if cfg.Namespace.StartCopyPolicyTxSize == 0 {
		cfg.Namespace.StartCopyPolicyTxSize = DefaultNamespaceConfig().StartCopyPolicyTxSize
	}
	if cfg.Namespace.CopyPolicyMultiplier == 0 {
		cfg.Namespace.CopyPolicyMultiplier = DefaultNamespaceConfig().CopyPolicyMultiplier
	}
	if cfg.Namespace.MaxIterationsIdSetPreResult == 0 {
		cfg.Namespace.MaxIterationsIdSetPreResult = DefaultNamespaceConfig().MaxIterationsIdSetPreResult
	}
	return cfg, nil
}
