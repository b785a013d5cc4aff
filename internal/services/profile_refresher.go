package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

// ProfileRefresher recomputes a user's style profile whenever the bus
// delivers an event that moves it.
type ProfileRefresher struct {
	consumer EventConsumer
	profiles ProfileRecomputer
	logger   *logrus.Logger
}

// NewProfileRefresher recomputes profiles for users seen on the event stream.
func NewProfileRefresher(consumer EventConsumer, profiles ProfileRecomputer, logger *logrus.Logger) *ProfileRefresher {
	return &ProfileRefresher{
		consumer: consumer,
		profiles: profiles,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (r *ProfileRefresher) Run(ctx context.Context) error {
	r.logger.Info("Profile refresher started")
	err := r.consumer.Consume(ctx, r.HandleEvent)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	r.logger.Info("Profile refresher stopped")
	return err
}

// HandleEvent ignores events with no profile weight.
func (r *ProfileRefresher) HandleEvent(ctx context.Context, event *models.Event) error {
	if event.UserID == "" || event.ItemID == "" || EventWeight(event.EventType) == 0 {
		return nil
	}

	embedding, err := r.profiles.ComputeUserStyleVector(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil
		}
		return err
	}

	if embedding != nil {
		r.logger.WithFields(logrus.Fields{
			"user_id":    event.UserID,
			"event_type": event.EventType,
			"version":    embedding.Version,
		}).Debug("Refreshed user profile")
	}
	return nil
}
