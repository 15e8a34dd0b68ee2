// Package config loads the engine configuration: a toml file for the
// binary and json documents for strategy definitions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/vrachnos/steer/internal/manager"
	"github.com/vrachnos/steer/internal/model"
)

// Config is the toml document of the steer binary. Zero values fall
// back to the component defaults.
type Config struct {
	App struct {
		LogLevel      string `toml:"log_level"`
		Port          int    `toml:"port"`
		StorageDir    string `toml:"storage_dir"`
		StrategiesDir string `toml:"strategies_dir"`
	} `toml:"app"`

	Manager struct {
		MaxConcurrent      int     `toml:"max_concurrent"`
		QueueSize          int     `toml:"queue_size"`
		SignalQueueSize    int     `toml:"signal_queue_size"`
		BatchSize          int     `toml:"batch_size"`
		PollTimeoutMs      int     `toml:"poll_timeout_ms"`
		ExecTimeoutSec     int     `toml:"exec_timeout_sec"`
		HealthIntervalSec  int     `toml:"health_interval_sec"`
		ErrorRateThreshold float64 `toml:"error_rate_threshold"`
		MaxActiveSignals   int     `toml:"max_active_signals"`
	} `toml:"manager"`

	Evaluator struct {
		MaxEvalTimeSec int     `toml:"max_eval_time_sec"`
		CacheTTLSec    int     `toml:"cache_ttl_sec"`
		CacheBucketSec int     `toml:"cache_bucket_sec"`
		MinAvgVolume   float64 `toml:"min_avg_volume"`
	} `toml:"evaluator"`

	Generator struct {
		MinConfidence         float64 `toml:"min_confidence"`
		TopReasons            int     `toml:"top_reasons"`
		ValidityMin           int     `toml:"validity_min"`
		ProtectiveValidityMin int     `toml:"protective_validity_min"`
		FilterMinConfidence   float64 `toml:"filter_min_confidence"`
		FilterMinVolumeRatio  float64 `toml:"filter_min_volume_ratio"`
		FilterMaxSpread       float64 `toml:"filter_max_spread"`
	} `toml:"generator"`

	Allocator struct {
		Method             string            `toml:"method"`
		MinCashPct         float64           `toml:"min_cash_pct"`
		MaxPositionWeight  float64           `toml:"max_position_weight"`
		MaxSectorWeight    float64           `toml:"max_sector_weight"`
		MaxStrategyWeight  float64           `toml:"max_strategy_weight"`
		MinConfidence      float64           `toml:"min_confidence"`
		TargetVolatility   float64           `toml:"target_volatility"`
		RebalanceThreshold float64           `toml:"rebalance_threshold"`
		Sectors            map[string]string `toml:"sectors"`
	} `toml:"allocator"`

	Limits struct {
		PositionRisk    float64 `toml:"position_risk"`
		LiquidityRisk   float64 `toml:"liquidity_risk"`
		CorrelationRisk float64 `toml:"correlation_risk"`
		Concentration   float64 `toml:"concentration"`
		Volatility      float64 `toml:"volatility"`
		DrawdownRisk    float64 `toml:"drawdown_risk"`
	} `toml:"limits"`
}

// Load parses the toml file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config '%s': %w", path, err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config '%s': %w", path, err)
	}
	return cfg, nil
}

// ManagerConfig merges the file values over the component defaults.
func (c *Config) ManagerConfig() manager.Config {
	cfg := manager.NewConfig()

	applyInt(&cfg.MaxConcurrent, c.Manager.MaxConcurrent)
	applyInt(&cfg.QueueSize, c.Manager.QueueSize)
	applyInt(&cfg.SignalQueueSize, c.Manager.SignalQueueSize)
	applyInt(&cfg.BatchSize, c.Manager.BatchSize)
	applyDuration(&cfg.PollTimeout, c.Manager.PollTimeoutMs, time.Millisecond)
	applyDuration(&cfg.ExecTimeout, c.Manager.ExecTimeoutSec, time.Second)
	applyDuration(&cfg.HealthInterval, c.Manager.HealthIntervalSec, time.Second)
	applyFloat(&cfg.ErrorRateThreshold, c.Manager.ErrorRateThreshold)
	applyInt(&cfg.MaxActiveSignals, c.Manager.MaxActiveSignals)

	applyDuration(&cfg.Evaluator.MaxEvalTime, c.Evaluator.MaxEvalTimeSec, time.Second)
	applyDuration(&cfg.Evaluator.CacheTTL, c.Evaluator.CacheTTLSec, time.Second)
	applyDuration(&cfg.Evaluator.CacheBucket, c.Evaluator.CacheBucketSec, time.Second)
	applyFloat(&cfg.Evaluator.MinAvgVolume, c.Evaluator.MinAvgVolume)

	applyFloat(&cfg.Generator.MinConfidence, c.Generator.MinConfidence)
	applyInt(&cfg.Generator.TopReasons, c.Generator.TopReasons)
	applyDuration(&cfg.Generator.Validity, c.Generator.ValidityMin, time.Minute)
	applyDuration(&cfg.Generator.ProtectiveValidity, c.Generator.ProtectiveValidityMin, time.Minute)
	applyFloat(&cfg.Generator.Filter.MinConfidence, c.Generator.FilterMinConfidence)
	applyFloat(&cfg.Generator.Filter.MinVolumeRatio, c.Generator.FilterMinVolumeRatio)
	applyFloat(&cfg.Generator.Filter.MaxSpread, c.Generator.FilterMaxSpread)

	if c.Allocator.Method != "" {
		cfg.Allocator.Method = model.SizingMethod(c.Allocator.Method)
	}
	applyDecimal(&cfg.Allocator.MinCashPct, c.Allocator.MinCashPct)
	applyDecimal(&cfg.Allocator.MaxPositionWeight, c.Allocator.MaxPositionWeight)
	applyDecimal(&cfg.Allocator.MaxSectorWeight, c.Allocator.MaxSectorWeight)
	applyDecimal(&cfg.Allocator.MaxStrategyWeight, c.Allocator.MaxStrategyWeight)
	applyFloat(&cfg.Allocator.MinConfidence, c.Allocator.MinConfidence)
	applyFloat(&cfg.Allocator.TargetVolatility, c.Allocator.TargetVolatility)
	applyDecimal(&cfg.Allocator.RebalanceThreshold, c.Allocator.RebalanceThreshold)
	if len(c.Allocator.Sectors) > 0 {
		cfg.Allocator.Sectors = c.Allocator.Sectors
	}

	applyFloat(&cfg.Limits.PositionRisk, c.Limits.PositionRisk)
	applyFloat(&cfg.Limits.LiquidityRisk, c.Limits.LiquidityRisk)
	applyFloat(&cfg.Limits.CorrelationRisk, c.Limits.CorrelationRisk)
	applyFloat(&cfg.Limits.Concentration, c.Limits.Concentration)
	applyFloat(&cfg.Limits.Volatility, c.Limits.Volatility)
	applyFloat(&cfg.Limits.DrawdownRisk, c.Limits.DrawdownRisk)

	return cfg
}

func applyInt(target *int, v int) {
	if v > 0 {
		*target = v
	}
}

func applyFloat(target *float64, v float64) {
	if v > 0 {
		*target = v
	}
}

func applyDuration(target *time.Duration, v int, unit time.Duration) {
	if v > 0 {
		*target = time.Duration(v) * unit
	}
}

func applyDecimal(target *decimal.Decimal, v float64) {
	if v > 0 {
		*target = decimal.NewFromFloat(v)
	}
}

// LoadStrategies reads every json strategy definition under dir.
// Intervals are given in seconds in the documents.
func LoadStrategies(dir string) ([]model.Strategy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read strategies dir '%s': %w", dir, err)
	}
	var strategies []model.Strategy
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read strategy '%s': %w", path, err)
		}
		var doc strategyDoc
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("could not parse strategy '%s': %w", path, err)
		}
		strategies = append(strategies, doc.strategy())
	}
	return strategies, nil
}

// strategyDoc is the on-disk strategy schema, with the interval as
// plain seconds instead of a duration.
type strategyDoc struct {
	model.Strategy
	IntervalSec int `json:"interval_sec"`
}

func (d strategyDoc) strategy() model.Strategy {
	s := d.Strategy
	if d.IntervalSec > 0 {
		s.Interval = time.Duration(d.IntervalSec) * time.Second
	}
	return s
}
