package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/pkg/models"
)

const (
	historyTopTags          = 5
	styleMatchThreshold     = 0.85
	fastDeliveryMaxDays     = 3.0
	topVendorQualityMinimum = 0.7
)

// ExplanationService turns ranking evidence into reason texts and codes.
type ExplanationService struct {
	logger *logrus.Logger
}

// NewExplanationService returns a stateless explainer.
func NewExplanationService(logger *logrus.Logger) *ExplanationService {
	return &ExplanationService{logger: logger}
}

// HistoryProfile is the part of a user's history explanations look at.
type HistoryProfile struct {
	TopTags []string
	topSet  map[string]string
}

// NewHistoryProfile takes the most frequent tags across the items a user
// interacted with, ties broken alphabetically.
func NewHistoryProfile(history []models.CatalogItem) HistoryProfile {
	counts := make(map[string]int)
	display := make(map[string]string)
	for i := range history {
		for _, tag := range history[i].Tags {
			n := normalizeTag(tag)
			if n == "" {
				continue
			}
			counts[n]++
			if _, ok := display[n]; !ok {
				display[n] = tag
			}
		}
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > historyTopTags {
		keys = keys[:historyTopTags]
	}

	p := HistoryProfile{topSet: make(map[string]string, len(keys))}
	for _, k := range keys {
		p.TopTags = append(p.TopTags, display[k])
		p.topSet[k] = display[k]
	}
	return p
}

// GenerateExplanations runs each evidence check independently. An item with
// no supporting evidence gets an empty explanation.
func (s *ExplanationService) GenerateExplanations(item models.RankedItem, history HistoryProfile) models.Explanation {
	exp := models.Explanation{
		Texts: []string{},
		Codes: []models.ReasonCode{},
	}

	if matched := history.matching(item.Item.Tags); len(matched) > 0 {
		exp.Texts = append(exp.Texts, fmt.Sprintf("Matches your interest in %s", strings.Join(matched, ", ")))
		exp.Codes = append(exp.Codes, models.ReasonTagMatch)
	}

	if item.Debug.VScore > styleMatchThreshold {
		exp.Texts = append(exp.Texts, "Highly relevant to your style")
		exp.Codes = append(exp.Codes, models.ReasonStyleMatch)
	}

	if eta := item.Item.RawVendorData.EtaDays; eta != nil && *eta <= fastDeliveryMaxDays {
		exp.Texts = append(exp.Texts, "Fast Delivery")
		exp.Codes = append(exp.Codes, models.ReasonFastETA)
	}

	if item.Debug.VendorQualityScore > topVendorQualityMinimum {
		exp.Texts = append(exp.Texts, "Top Rated Vendor")
		exp.Codes = append(exp.Codes, models.ReasonTopVendor)
	}

	if !item.Debug.PricePenalty && item.Item.Price > 0 {
		exp.Texts = append(exp.Texts, "Within your budget")
		exp.Codes = append(exp.Codes, models.ReasonWithinBudget)
	}

	return exp
}

// Explain fills the explanation of every item in place.
func (s *ExplanationService) Explain(items []models.RankedItem, history HistoryProfile) []models.RankedItem {
	for i := range items {
		items[i].Explanation = s.GenerateExplanations(items[i], history)
	}
	return items
}

func (p HistoryProfile) matching(tags []string) []string {
	if len(p.topSet) == 0 {
		return nil
	}
	var matched []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		n := normalizeTag(tag)
		display, ok := p.topSet[n]
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		matched = append(matched, display)
	}
	return matched
}
