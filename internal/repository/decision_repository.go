package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"FinFusion/internal/domain/models"
	domrepo "FinFusion/internal/domain/repository"
	pkgch "FinFusion/pkg/clickhouse"
	pkgkafka "FinFusion/pkg/kafka"
)

// CHDecisionStore keeps the decision audit trail in ClickHouse.
type CHDecisionStore struct {
	db    *sql.DB
	table string
}

func NewCHDecisionStore(ch *pkgch.Client) *CHDecisionStore {
	return &CHDecisionStore{db: ch.DB(), table: ch.Database() + ".decisions"}
}

func (s *CHDecisionStore) SaveDecision(ctx context.Context, d *models.WeightedConfidence) error {
	factors, err := json.Marshal(d.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	weights, err := json.Marshal(d.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	adjustments, err := json.Marshal(d.Adjustments)
	if err != nil {
		return fmt.Errorf("marshal adjustments: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, ts, symbol, timeframe, signal, overall_confidence, reliability, risk_level, factors, weights, adjustments)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		d.ID,
		d.Timestamp,
		d.Symbol,
		d.Timeframe,
		string(d.Signal),
		d.OverallConfidence,
		d.Reliability,
		string(d.RiskLevel),
		string(factors),
		string(weights),
		string(adjustments),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *CHDecisionStore) LatestDecisions(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.WeightedConfidence, error) {
	q := fmt.Sprintf(`
        SELECT id, ts, symbol, timeframe, signal, overall_confidence, reliability, risk_level, factors, weights, adjustments
        FROM %s
        WHERE symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		return nil, fmt.Errorf("latest decisions: %w", err)
	}
	defer rows.Close()

	var out []models.WeightedConfidence
	for rows.Next() {
		var (
			d                            models.WeightedConfidence
			signal, risk                 string
			factors, weights, adjustment string
		)
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.Symbol, &d.Timeframe, &signal, &d.OverallConfidence,
			&d.Reliability, &risk, &factors, &weights, &adjustment); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Signal = models.Signal(signal)
		d.RiskLevel = models.RiskLevel(risk)
		if err := json.Unmarshal([]byte(factors), &d.Factors); err != nil {
			return nil, fmt.Errorf("decode factors: %w", err)
		}
		if err := json.Unmarshal([]byte(weights), &d.Weights); err != nil {
			return nil, fmt.Errorf("decode weights: %w", err)
		}
		if err := json.Unmarshal([]byte(adjustment), &d.Adjustments); err != nil {
			return nil, fmt.Errorf("decode adjustments: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// KafkaDecisionPublisher writes decisions to the decisions topic keyed by
// symbol, so one symbol's decisions stay ordered.
type KafkaDecisionPublisher struct {
	topic *pkgkafka.Topic[*models.WeightedConfidence]
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{topic: pkgkafka.NewTopic(producer, topic, decisionKey)}
}

func decisionKey(d *models.WeightedConfidence) string { return d.Symbol }

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, d *models.WeightedConfidence) error {
	return p.topic.Publish(ctx, d)
}

var (
	_ domrepo.DecisionStore     = (*CHDecisionStore)(nil)
	_ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)
)
