package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SaveScalingEvent persists one scaling audit record
func (s *PostgresStore) SaveScalingEvent(ctx context.Context, event *models.ScalingEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `
		INSERT INTO scaling_events (
			id, agent_id, event_type, trigger, from_replicas, to_replicas,
			reason, duration_ms, success, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.AgentID, event.Type, event.Trigger,
		event.FromReplicas, event.ToReplicas,
		event.Reason, event.Duration.Milliseconds(), event.Success,
		nullableString(event.Error), event.Timestamp,
	)

	return err
}

// ListScalingEvents retrieves recent scaling events for an agent,
// newest first
func (s *PostgresStore) ListScalingEvents(ctx context.Context, agentID string, limit int) ([]*models.ScalingEvent, error) {
	query := `
		SELECT id, agent_id, event_type, trigger, from_replicas, to_replicas,
			reason, duration_ms, success, error_message, created_at
		FROM scaling_events
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.ScalingEvent
	for rows.Next() {
		var event models.ScalingEvent
		var durationMs int64
		var reason, errorMessage sql.NullString

		err := rows.Scan(
			&event.ID, &event.AgentID, &event.Type, &event.Trigger,
			&event.FromReplicas, &event.ToReplicas,
			&reason, &durationMs, &event.Success, &errorMessage, &event.Timestamp,
		)
		if err != nil {
			return nil, err
		}

		event.Reason = reason.String
		event.Error = errorMessage.String
		event.Duration = time.Duration(durationMs) * time.Millisecond

		events = append(events, &event)
	}

	return events, rows.Err()
}

// SaveRecommendation persists a generated recommendation
func (s *PostgresStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO recommendations (
			id, agent_id, rec_type,
			current_cpu_max_millicores, current_memory_max_bytes,
			recommended_cpu_max_millicores, recommended_memory_max_bytes,
			impact_performance, impact_cost, impact_stability,
			confidence, reasoning, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.AgentID, rec.Type,
		nullableInt64(rec.Current.CPUMaxMillicores), nullableInt64(rec.Current.MemoryMaxBytes),
		nullableInt64(rec.Recommended.CPUMaxMillicores), nullableInt64(rec.Recommended.MemoryMaxBytes),
		rec.Impact.Performance, rec.Impact.Cost, rec.Impact.Stability,
		rec.Confidence, strings.Join(rec.Reasoning, "; "), rec.CreatedAt,
	)

	return err
}

// ListRecommendations retrieves recent recommendations for an agent,
// newest first
func (s *PostgresStore) ListRecommendations(ctx context.Context, agentID string, limit int) ([]*models.Recommendation, error) {
	query := `
		SELECT id, agent_id, rec_type,
			current_cpu_max_millicores, current_memory_max_bytes,
			recommended_cpu_max_millicores, recommended_memory_max_bytes,
			impact_performance, impact_cost, impact_stability,
			confidence, reasoning, created_at
		FROM recommendations
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recommendations []*models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var currentCPU, currentMem, recCPU, recMem sql.NullInt64
		var performance, cost, stability, reasoning sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.AgentID, &rec.Type,
			&currentCPU, &currentMem, &recCPU, &recMem,
			&performance, &cost, &stability,
			&rec.Confidence, &reasoning, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec.Current.CPUMaxMillicores = int64Ptr(currentCPU)
		rec.Current.MemoryMaxBytes = int64Ptr(currentMem)
		rec.Recommended.CPUMaxMillicores = int64Ptr(recCPU)
		rec.Recommended.MemoryMaxBytes = int64Ptr(recMem)
		rec.Impact = models.Impact{
			Performance: performance.String,
			Cost:        cost.String,
			Stability:   stability.String,
		}
		if reasoning.Valid && reasoning.String != "" {
			rec.Reasoning = strings.Split(reasoning.String, "; ")
		}

		recommendations = append(recommendations, &rec)
	}

	return recommendations, rows.Err()
}

// SaveUsageSnapshot persists one usage observation
func (s *PostgresStore) SaveUsageSnapshot(ctx context.Context, usage *models.AgentResourceUsage) error {
	query := `
		INSERT INTO usage_snapshots (
			agent_id, collected_at,
			cpu_used_millicores, cpu_utilization, cpu_limit_millicores,
			memory_used_bytes, memory_utilization, memory_limit_bytes,
			replicas_current, replicas_desired, replicas_healthy, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (agent_id, collected_at) DO UPDATE SET
			cpu_used_millicores = EXCLUDED.cpu_used_millicores,
			cpu_utilization = EXCLUDED.cpu_utilization,
			memory_used_bytes = EXCLUDED.memory_used_bytes,
			memory_utilization = EXCLUDED.memory_utilization,
			replicas_current = EXCLUDED.replicas_current,
			replicas_desired = EXCLUDED.replicas_desired,
			replicas_healthy = EXCLUDED.replicas_healthy,
			status = EXCLUDED.status
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.AgentID, usage.Timestamp,
		usage.CPU.UsedMillicores, usage.CPU.UtilizationPercent, usage.CPU.LimitMillicores,
		usage.Memory.UsedBytes, usage.Memory.UtilizationPercent, usage.Memory.LimitBytes,
		usage.Replicas.Current, usage.Replicas.Desired, usage.Replicas.Healthy,
		usage.Status,
	)

	return err
}

// GetUsageHistory retrieves recent usage snapshots for an agent,
// newest first
func (s *PostgresStore) GetUsageHistory(ctx context.Context, agentID string, limit int) ([]*models.AgentResourceUsage, error) {
	query := `
		SELECT agent_id, collected_at,
			cpu_used_millicores, cpu_utilization, cpu_limit_millicores,
			memory_used_bytes, memory_utilization, memory_limit_bytes,
			replicas_current, replicas_desired, replicas_healthy, status
		FROM usage_snapshots
		WHERE agent_id = $1
		ORDER BY collected_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.AgentResourceUsage
	for rows.Next() {
		var usage models.AgentResourceUsage

		err := rows.Scan(
			&usage.AgentID, &usage.Timestamp,
			&usage.CPU.UsedMillicores, &usage.CPU.UtilizationPercent, &usage.CPU.LimitMillicores,
			&usage.Memory.UsedBytes, &usage.Memory.UtilizationPercent, &usage.Memory.LimitBytes,
			&usage.Replicas.Current, &usage.Replicas.Desired, &usage.Replicas.Healthy,
			&usage.Status,
		)
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, &usage)
	}

	return snapshots, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}
