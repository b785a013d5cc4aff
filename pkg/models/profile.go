package models

import "time"

const (
	StyleDimensions = 1536
	FitDimensions   = 16
)

// UserEmbedding is overwritten wholesale on every recompute.
type UserEmbedding struct {
	UserID      string      `json:"userId"`
	UStyle      []float32   `json:"u_style"`
	UFit        []float32   `json:"u_fit,omitempty"`
	Scalars     UserScalars `json:"scalars"`
	Version     int         `json:"version"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

type UserScalars struct {
	FitPreference string `json:"fit_preference,omitempty"`
}

// StylePreferences are the explicit preferences a user states during onboarding.
type StylePreferences struct {
	UserID          string   `json:"userId"`
	WearsPreference string   `json:"wearsPreference,omitempty"`
	AestheticTags   []string `json:"aestheticTags,omitempty"`
	BodyFitTags     []string `json:"bodyFitTags,omitempty"`
}

func (p *StylePreferences) Empty() bool {
	return p == nil || (p.WearsPreference == "" && len(p.AestheticTags) == 0 && len(p.BodyFitTags) == 0)
}

// ColdStartLevel grades the personalisation signal behind a feed.
type ColdStartLevel string

const (
	ColdStartCold        ColdStartLevel = "cold"
	ColdStartWarmSession ColdStartLevel = "warm_session"
	ColdStartHot         ColdStartLevel = "hot"
)
