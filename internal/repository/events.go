package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qlozet/stylefeed/pkg/models"
)

type EventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) LogEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	properties, err := json.Marshal(event.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event properties: %w", err)
	}
	eventContext, err := json.Marshal(event.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event context: %w", err)
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event metadata: %w", err)
	}

	query := `
		INSERT INTO feed_events (id, user_id, session_id, item_id, event_type, properties, context, metadata, ts)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		event.ID, event.UserID, event.SessionID, event.ItemID, string(event.EventType),
		properties, eventContext, metadata, event.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	return event, nil
}

// GetRecentEvents returns the user's events newest first, optionally only
// those at or after since.
func (r *EventRepository) GetRecentEvents(ctx context.Context, userID string, limit int, since *time.Time) ([]models.Event, error) {
	query := `
		SELECT id, user_id, COALESCE(session_id, ''), COALESCE(item_id, ''), event_type,
			properties, context, metadata, ts
		FROM feed_events
		WHERE user_id = $1`
	args := []any{userID, limit}
	if since != nil {
		query += ` AND ts >= $3`
		args = append(args, *since)
	}
	query += ` ORDER BY ts DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			event                              models.Event
			eventType                          string
			properties, eventContext, metadata []byte
		)
		if err := rows.Scan(
			&event.ID, &event.UserID, &event.SessionID, &event.ItemID, &eventType,
			&properties, &eventContext, &metadata, &event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.EventType = models.EventType(eventType)

		if err := decodeJSON(properties, &event.Properties); err != nil {
			return nil, fmt.Errorf("event %s: properties: %w", event.ID, err)
		}
		if err := decodeJSON(eventContext, &event.Context); err != nil {
			return nil, fmt.Errorf("event %s: context: %w", event.ID, err)
		}
		if err := decodeJSON(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("event %s: metadata: %w", event.ID, err)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
