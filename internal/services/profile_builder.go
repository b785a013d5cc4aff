package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

// EventWeight is the signed contribution of one event to a style vector
// before time decay. Event types without a weight do not contribute.
func EventWeight(t models.EventType) float64 {
	switch t {
	case models.EventPurchase:
		return 5.0
	case models.EventAddToCart:
		return 3.0
	case models.EventSaveItem:
		return 2.0
	case models.EventClickItem:
		return 1.0
	case models.EventViewItem:
		return 0.5
	case models.EventNotInterested:
		return -6.0
	case models.EventHideBusiness:
		return -10.0
	default:
		return 0
	}
}

// ProfileBuilder derives user and session style vectors from explicit
// preferences and decayed behavioural history.
type ProfileBuilder struct {
	catalog  CatalogRepository
	events   EventLog
	profiles ProfileStore
	embedder EmbeddingProvider
	config   config.ProfileConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewProfileBuilder fills unset profile settings with their defaults.
func NewProfileBuilder(
	catalog CatalogRepository,
	events EventLog,
	profiles ProfileStore,
	embedder EmbeddingProvider,
	cfg config.ProfileConfig,
	logger *logrus.Logger,
) *ProfileBuilder {
	if cfg.EventLimit <= 0 {
		cfg.EventLimit = 100
	}
	if cfg.DecayRate <= 0 {
		cfg.DecayRate = 0.05
	}
	if cfg.SessionAlpha <= 0 || cfg.SessionAlpha > 1 {
		cfg.SessionAlpha = 0.7
	}
	if cfg.SessionLastN <= 0 {
		cfg.SessionLastN = 30
	}

	return &ProfileBuilder{
		catalog:  catalog,
		events:   events,
		profiles: profiles,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// eventsLoader reads a user's recent events. Loaders built by
// newEventsLoader hit the event log at most once, so every stage of a
// request can share one.
type eventsLoader func() ([]models.Event, error)

func newEventsLoader(ctx context.Context, log EventLog, userID string, limit int) eventsLoader {
	return sync.OnceValues(func() ([]models.Event, error) {
		return log.GetRecentEvents(ctx, userID, limit, nil)
	})
}

// ComputeUserStyleVector rebuilds and persists the user's profile. It
// returns nil without an error when the user has neither usable preferences
// nor contributing events.
func (b *ProfileBuilder) ComputeUserStyleVector(ctx context.Context, userID string) (*models.UserEmbedding, error) {
	return b.computeUserStyleVector(ctx, userID, newEventsLoader(ctx, b.events, userID, b.config.EventLimit))
}

func (b *ProfileBuilder) computeUserStyleVector(ctx context.Context, userID string, loadEvents eventsLoader) (*models.UserEmbedding, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	events, err := loadEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	prefs, err := b.profiles.GetPreferences(ctx, userID)
	if err != nil {
		b.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load style preferences")
		prefs = nil
	}

	explicit := b.explicitVector(ctx, userID, prefs)
	behavioral := b.behavioralVector(ctx, events)

	var style []float32
	switch {
	case explicit != nil && behavioral != nil:
		if len(explicit) != len(behavioral) {
			b.logger.WithFields(logrus.Fields{
				"user_id":         userID,
				"explicit_dims":   len(explicit),
				"behavioral_dims": len(behavioral),
			}).Warn("Explicit and behavioral vectors differ in size, using behavioral only")
			style = behavioral
		} else {
			style = BlendVectors(explicit, behavioral, 0.5)
		}
	case behavioral != nil:
		style = behavioral
	case explicit != nil:
		style = NormalizeVector(explicit)
	default:
		return nil, nil
	}

	embedding := &models.UserEmbedding{
		UserID:      userID,
		UStyle:      style,
		UFit:        encodeFitTags(prefs),
		LastUpdated: b.now(),
	}
	if prefs != nil && len(prefs.BodyFitTags) > 0 {
		embedding.Scalars.FitPreference = prefs.BodyFitTags[0]
	}

	stored, err := b.profiles.UpsertUserEmbedding(ctx, embedding)
	if err != nil {
		b.logger.WithError(err).WithField("user_id", userID).Warn("Failed to persist user embedding")
		return embedding, nil
	}

	b.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"version":     stored.Version,
		"events":      len(events),
		"explicit":    explicit != nil,
		"behavioral":  behavioral != nil,
		"vector_norm": VectorNorm(stored.UStyle),
	}).Debug("Updated user style profile")

	return stored, nil
}

// ComputeSessionStyleVector accumulates only events tagged with sessionID,
// newest first, up to lastN of them. It returns nil when none contribute.
func (b *ProfileBuilder) ComputeSessionStyleVector(ctx context.Context, userID, sessionID string, lastN int) ([]float32, error) {
	return b.sessionStyleVector(ctx, sessionID, lastN, newEventsLoader(ctx, b.events, userID, b.config.EventLimit))
}

func (b *ProfileBuilder) sessionStyleVector(ctx context.Context, sessionID string, lastN int, loadEvents eventsLoader) ([]float32, error) {
	if sessionID == "" {
		return nil, nil
	}
	if lastN <= 0 {
		lastN = b.config.SessionLastN
	}

	events, err := loadEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}

	session := make([]models.Event, 0, lastN)
	for _, e := range events {
		if e.SessionID == sessionID {
			session = append(session, e)
		}
	}
	sort.SliceStable(session, func(i, j int) bool {
		return session[i].Timestamp.After(session[j].Timestamp)
	})
	if len(session) > lastN {
		session = session[:lastN]
	}

	return b.behavioralVector(ctx, session), nil
}

// ProfileVector returns the persisted style vector, computing one when the
// user has none yet. The bool reports whether the vector is backed by a
// stored profile; a computed vector that failed to persist is not.
func (b *ProfileBuilder) ProfileVector(ctx context.Context, userID string) ([]float32, bool, error) {
	return b.profileVector(ctx, userID, newEventsLoader(ctx, b.events, userID, b.config.EventLimit))
}

func (b *ProfileBuilder) profileVector(ctx context.Context, userID string, loadEvents eventsLoader) ([]float32, bool, error) {
	existing, err := b.profiles.GetUserEmbedding(ctx, userID)
	if err != nil {
		b.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load user embedding")
	} else if existing != nil && len(existing.UStyle) > 0 {
		return existing.UStyle, true, nil
	}

	computed, err := b.computeUserStyleVector(ctx, userID, loadEvents)
	if err != nil {
		return nil, false, err
	}
	if computed == nil {
		return nil, false, nil
	}
	return computed.UStyle, computed.Version > 0, nil
}

// SessionAlpha is the session weight used when blending with the profile.
func (b *ProfileBuilder) SessionAlpha() float64 {
	return b.config.SessionAlpha
}

// DetermineColdStartLevel grades how much personalisation signal a request
// has. Only a persisted profile makes a request hot.
func DetermineColdStartLevel(persistedProfile bool, session []float32) models.ColdStartLevel {
	switch {
	case persistedProfile:
		return models.ColdStartHot
	case session != nil:
		return models.ColdStartWarmSession
	default:
		return models.ColdStartCold
	}
}

func (b *ProfileBuilder) explicitVector(ctx context.Context, userID string, prefs *models.StylePreferences) []float32 {
	if prefs.Empty() || b.embedder == nil {
		return nil
	}

	vector, err := b.embedder.Embed(ctx, PreferenceText(prefs))
	if err != nil {
		b.logger.WithError(err).WithField("user_id", userID).Warn("Embedding provider failed, using behavior only")
		return nil
	}
	if len(vector) == 0 {
		return nil
	}
	return vector
}

func (b *ProfileBuilder) behavioralVector(ctx context.Context, events []models.Event) []float32 {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e.ItemID != "" && EventWeight(e.EventType) != 0 {
			ids = append(ids, e.ItemID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	items, err := b.catalog.FindByIDs(ctx, ids)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to load event items")
		return nil
	}

	now := b.now()
	var acc styleAccumulator
	for _, e := range events {
		weight := EventWeight(e.EventType)
		if weight == 0 {
			continue
		}
		item, ok := items[e.ItemID]
		if !ok {
			continue
		}
		ageDays := now.Sub(e.Timestamp).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		acc.add(item.StyleVector(), weight*math.Exp(-ageDays*b.config.DecayRate))
	}

	return acc.vector()
}

// PreferenceText renders explicit preferences as the prompt sent to the
// embedding provider.
func PreferenceText(prefs *models.StylePreferences) string {
	var parts []string
	if prefs.WearsPreference != "" {
		parts = append(parts, "Wears: "+prefs.WearsPreference)
	}
	if len(prefs.AestheticTags) > 0 {
		parts = append(parts, "Aesthetic: "+strings.Join(prefs.AestheticTags, ", "))
	}
	if len(prefs.BodyFitTags) > 0 {
		parts = append(parts, "Fit: "+strings.Join(prefs.BodyFitTags, ", "))
	}
	return strings.Join(parts, ". ")
}

// encodeFitTags hashes body-fit tags into a fixed 16-bucket unit vector.
func encodeFitTags(prefs *models.StylePreferences) []float32 {
	if prefs == nil || len(prefs.BodyFitTags) == 0 {
		return nil
	}
	v := make([]float32, models.FitDimensions)
	for _, tag := range prefs.BodyFitTags {
		n := normalizeTag(tag)
		if n == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(n))
		v[h.Sum32()%models.FitDimensions]++
	}
	return NormalizeVector(v)
}
