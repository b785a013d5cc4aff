package models

import "time"

type Stream string

const (
	StreamGarments    Stream = "garments"
	StreamAccessories Stream = "accessories"
	StreamFabrics     Stream = "fabrics"
	StreamTrending    Stream = "trending"
	StreamNew         Stream = "new_arrivals"
	StreamRelated     Stream = "related"
)

// Candidate source labels.
const (
	SourceVector   = "vector"
	SourceTrending = "trending"
	SourceRecent   = "recent"
	SourceRelated  = "related"
)

// Candidate is a retrieval result. Similarity is nil for items that did not
// come from a similarity search.
type Candidate struct {
	Item       CatalogItem `json:"item"`
	Similarity *float64    `json:"similarity,omitempty"`
	Source     string      `json:"source"`
}

// ScoringDebug carries the ranker's intermediate values next to the item.
type ScoringDebug struct {
	VScore             float64 `json:"vScore"`
	VendorQualityScore float64 `json:"vendorQualityScore"`
	EtaScore           float64 `json:"etaScore"`
	PriceFit           float64 `json:"priceFit"`
	VendorBoost        float64 `json:"vendorBoost"`
	PricePenalty       bool    `json:"pricePenalty"`
}

type ReasonCode string

const (
	ReasonTagMatch     ReasonCode = "TAG_MATCH"
	ReasonStyleMatch   ReasonCode = "STYLE_MATCH"
	ReasonFastETA      ReasonCode = "FAST_ETA"
	ReasonTopVendor    ReasonCode = "TOP_VENDOR"
	ReasonWithinBudget ReasonCode = "WITHIN_BUDGET"
)

type Explanation struct {
	Texts []string     `json:"texts"`
	Codes []ReasonCode `json:"codes"`
}

func (e Explanation) Empty() bool {
	return len(e.Codes) == 0
}

// RankedItem is a scored candidate as returned in feeds.
type RankedItem struct {
	Item        CatalogItem  `json:"item"`
	FinalScore  float64      `json:"finalScore"`
	Debug       ScoringDebug `json:"scoringDebug"`
	Stream      Stream       `json:"stream,omitempty"`
	Explanation Explanation  `json:"explanation"`
}

// FilterSpec is built per request from query parameters and the user's
// stored preferences. Nil pointers and empty strings disable a predicate.
type FilterSpec struct {
	InStockOnly    bool                `json:"inStockOnly"`
	MaxPrice       *float64            `json:"maxPrice,omitempty"`
	DeliveryRegion string              `json:"deliveryRegion,omitempty"`
	DeadlineDays   *int                `json:"deadlineDays,omitempty"`
	BlockedVendors map[string]struct{} `json:"-"`
	Gender         string              `json:"gender,omitempty"`
	Category       string              `json:"category,omitempty"`
}

// NewFilterSpec hides out-of-stock items and blocks no vendors.
func NewFilterSpec() FilterSpec {
	return FilterSpec{
		InStockOnly:    true,
		BlockedVendors: make(map[string]struct{}),
	}
}

type DropReason string

const (
	DropVendorGated   DropReason = "vendor_gated"
	DropOutOfStock    DropReason = "out_of_stock"
	DropOverBudget    DropReason = "over_budget"
	DropBlockedVendor DropReason = "blocked_vendor"
	DropDemographic   DropReason = "demographic"
	DropCategory      DropReason = "category"
)

// DropCounts attributes each filtered candidate to the first predicate it failed.
type DropCounts map[DropReason]int

func (d DropCounts) Total() int {
	total := 0
	for _, n := range d {
		total += n
	}
	return total
}

type FeedDebug struct {
	ColdStartLevel   ColdStartLevel `json:"coldStartLevel"`
	UsedSessionBlend bool           `json:"usedSessionBlend"`
	CandidateCount   int            `json:"candidateCount"`
	FilteredCount    int            `json:"filteredCount"`
	Dropped          DropCounts     `json:"dropped,omitempty"`
	DurationMs       int64          `json:"durationMs"`
}

// FeedResponse is the body of every item feed.
type FeedResponse struct {
	RequestID string       `json:"requestId"`
	Items     []RankedItem `json:"items"`
	Debug     *FeedDebug   `json:"debug,omitempty"`
}

type VendorGroup struct {
	VendorID    string       `json:"vendorId"`
	VendorScore float64      `json:"vendorScore"`
	Products    []RankedItem `json:"products"`
}

type VendorFeedResponse struct {
	RequestID string        `json:"requestId"`
	Vendors   []VendorGroup `json:"vendors"`
}

type DiversityMetrics struct {
	UniqueVendors    int `json:"uniqueVendors"`
	UniqueCategories int `json:"uniqueCategories"`
}

// EvaluationMetrics are recall-style ratios over the held-out event set.
type EvaluationMetrics struct {
	K             int              `json:"k"`
	CTRAtK        float64          `json:"ctrAtK"`
	ConversionAtK float64          `json:"conversionAtK"`
	Diversity     DiversityMetrics `json:"diversity"`
}

type EvaluateRequest struct {
	UserID  string     `json:"userId" binding:"required"`
	ItemIDs []string   `json:"itemIds" binding:"required,min=1,max=500"`
	K       int        `json:"k" binding:"omitempty,min=1,max=500"`
	Since   *time.Time `json:"since,omitempty"`
}
