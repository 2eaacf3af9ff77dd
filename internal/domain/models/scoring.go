package models

// IndicatorScore is the normalized reading of a single indicator family.
type IndicatorScore struct {
	Indicator  string   `json:"indicator"`
	Score      float64  `json:"score"`
	Signal     Signal   `json:"signal"`
	Strength   Strength `json:"strength"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning,omitempty"`
}

// CorrelationPair is the Pearson correlation of two indicator series.
type CorrelationPair struct {
	A           string   `json:"a"`
	B           string   `json:"b"`
	Correlation float64  `json:"correlation"`
	Strength    Strength `json:"strength"`
	Agreement   bool     `json:"agreement"`
}

// CorrelationMatrix summarizes all pairwise correlations of one cycle.
type CorrelationMatrix struct {
	Pairs              []CorrelationPair `json:"pairs"`
	AverageCorrelation float64           `json:"average_correlation"`
	StrongPairs        []CorrelationPair `json:"strong_pairs"`
	WeakPairs          []CorrelationPair `json:"weak_pairs"`
}

// Empty reports whether no pair could be computed.
func (m CorrelationMatrix) Empty() bool { return len(m.Pairs) == 0 }

// Divergence is a price/indicator disagreement at recent extrema.
type Divergence struct {
	Indicator       string  `json:"indicator"`
	Type            Signal  `json:"type"` // bullish or bearish
	Strength        float64 `json:"strength"`
	PriceAction     string  `json:"price_action"`
	IndicatorAction string  `json:"indicator_action"`
}

// IndicatorMatrix is the ScoringMatrix output of one cycle.
type IndicatorMatrix struct {
	Scores         []IndicatorScore  `json:"scores"`
	Correlation    CorrelationMatrix `json:"correlation"`
	Divergences    []Divergence      `json:"divergences"`
	OverallScore   float64           `json:"overall_score"`
	DominantSignal Signal            `json:"dominant_signal"`
	Confidence     float64           `json:"confidence"`
}

// Score returns the score for an indicator name, if present.
func (m IndicatorMatrix) Score(name string) (IndicatorScore, bool) {
	for _, s := range m.Scores {
		if s.Indicator == name {
			return s, true
		}
	}
	return IndicatorScore{}, false
}
