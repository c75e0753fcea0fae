// ABOUTME: Tenant-scoped activity persistence
// ABOUTME: Every query is scoped by the resolved schema name

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateActivity stores a new activity in the given tenant namespace.
func (s *SQLiteStore) CreateActivity(ctx context.Context, activity *Activity) error {
	query := `
		INSERT INTO activities (id, schema_name, user_id, sport, title, distance_m, duration_s, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		activity.ID,
		activity.SchemaName,
		activity.UserID,
		activity.Sport,
		activity.Title,
		activity.DistanceM,
		int64(activity.Duration.Seconds()),
		activity.StartedAt.UTC().Format(time.RFC3339),
		activity.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	return nil
}

// ListActivities returns a user's activities within one tenant namespace,
// newest first.
func (s *SQLiteStore) ListActivities(ctx context.Context, schemaName, userID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, schema_name, user_id, sport, title, distance_m, duration_s, started_at, created_at
		FROM activities
		WHERE schema_name = ? AND user_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, schemaName, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var activities []*Activity
	for rows.Next() {
		var activity Activity
		var title sql.NullString
		var durationS int64
		var startedAtStr, createdAtStr string

		if err := rows.Scan(
			&activity.ID,
			&activity.SchemaName,
			&activity.UserID,
			&activity.Sport,
			&title,
			&activity.DistanceM,
			&durationS,
			&startedAtStr,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}

		activity.Title = title.String
		activity.Duration = time.Duration(durationS) * time.Second

		activity.StartedAt, err = time.Parse(time.RFC3339, startedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		activity.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		activities = append(activities, &activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}

	return activities, nil
}
