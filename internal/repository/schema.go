package repository

import "fmt"

// Schema returns the idempotent DDL for database db.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
            bucket    DateTime64(3, 'UTC'),
            symbol    LowCardinality(String),
            timeframe LowCardinality(String),
            open      Float64,
            high      Float64,
            low       Float64,
            close     Float64,
            volume    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, timeframe, bucket)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.indicator_samples (
            ts            DateTime64(3, 'UTC'),
            symbol        LowCardinality(String),
            timeframe     LowCardinality(String),
            rsi           Float64,
            wt1           Float64,
            wt2           Float64,
            wt_signal     LowCardinality(String),
            wt_divergence LowCardinality(String),
            pvt           Float64,
            trend         LowCardinality(String),
            momentum      LowCardinality(String),
            volatility    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, timeframe, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decisions (
            id                 String,
            ts                 DateTime64(3, 'UTC'),
            symbol             LowCardinality(String),
            timeframe          LowCardinality(String),
            signal             LowCardinality(String),
            overall_confidence Float64,
            reliability        Float64,
            risk_level         LowCardinality(String),
            factors            String,
            weights            String,
            adjustments        String
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, timeframe, ts)
        TTL toDateTime(ts) + INTERVAL 90 DAY`, db),
	}
}
