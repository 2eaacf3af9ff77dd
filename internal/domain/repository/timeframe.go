package repository

import "strings"

// Timeframe is a candle bucket width as it appears on bars and queries.
type Timeframe string

const (
	TF1s  Timeframe = "1s"
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// DefaultTimeframe applies to bars and queries that name none.
const DefaultTimeframe = TF1m

var tracked = map[Timeframe]bool{TF1s: true, TF1m: true, TF5m: true, TF15m: true, TF1h: true, TF4h: true, TF1d: true}

// Valid reports whether engines run on tf.
func (tf Timeframe) Valid() bool { return tracked[tf] }

// NormalizeTimeframe trims s; blank or untracked values map to the default.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(strings.TrimSpace(s)); tf.Valid() {
		return tf
	}
	return DefaultTimeframe
}
