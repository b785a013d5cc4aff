package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

var knownEventTypes = map[models.EventType]struct{}{
	models.EventViewItem:      {},
	models.EventClickItem:     {},
	models.EventAddToCart:     {},
	models.EventSaveItem:      {},
	models.EventPurchase:      {},
	models.EventNotInterested: {},
	models.EventHideBusiness:  {},
	models.EventSearch:        {},
	models.EventImpression:    {},
}

// EventService records behavioural events and fans them out to the bus and
// the co-purchase graph.
type EventService struct {
	events    EventLog
	publisher EventPublisher
	graph     CoPurchaseGraph
	counters  *EventCounters
	metrics   *FeedMetrics
	logger    *logrus.Logger
	now       func() time.Time
}

// NewEventService logs events and fans them out. publisher, graph and
// counters may each be nil.
func NewEventService(
	events EventLog,
	publisher EventPublisher,
	graph CoPurchaseGraph,
	counters *EventCounters,
	metrics *FeedMetrics,
	logger *logrus.Logger,
) *EventService {
	return &EventService{
		events:    events,
		publisher: publisher,
		graph:     graph,
		counters:  counters,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// LogEvent persists the event. Publishing and graph updates are best effort.
func (s *EventService) LogEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event == nil || event.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if _, ok := knownEventTypes[event.EventType]; !ok {
		return nil, fmt.Errorf("%w: unknown eventType %q", ErrInvalidRequest, event.EventType)
	}
	if event.EventType == models.EventHideBusiness && event.BusinessID() == "" {
		return nil, fmt.Errorf("%w: %s requires properties.businessId", ErrInvalidRequest, event.EventType)
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	stored, err := s.events.LogEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, stored); err != nil {
			s.logger.WithError(err).WithField("event_id", stored.ID).Warn("Failed to publish event")
		}
	}

	if s.graph != nil && stored.EventType == models.EventPurchase && stored.ItemID != "" {
		if err := s.graph.RecordPurchase(ctx, stored.UserID, stored.ItemID); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": stored.UserID,
				"item_id": stored.ItemID,
			}).Warn("Failed to record purchase in co-purchase graph")
		}
	}

	s.metrics.RecordEvent(stored.EventType)
	if n, log := s.counters.Observe(stored.EventType); log {
		s.logger.WithFields(logrus.Fields{
			"event_type": stored.EventType,
			"count":      n,
		}).Info("Events received")
	}

	return stored, nil
}
