package services

import (
	"sort"

	"github.com/qlozet/stylefeed/pkg/models"
)

// Ranking weights. Changing any of these changes every feed's ordering.
const (
	weightVScore        = 0.70
	weightVendorQuality = 0.15
	weightEta           = 0.10
	weightPriceFit      = 0.05

	defaultVScore        = 0.5
	defaultVendorQuality = 0.8
	defaultEtaDays       = 3.0
	featuredVendorBoost  = 0.2
)

// RankingContext carries the request-level inputs shared by every score.
type RankingContext struct {
	BudgetMax   *float64
	VendorTrust models.VendorTrustMap
}

// ScoreItem computes
//
//	0.70*vScore + 0.15*vendorQuality + 0.10/(eta+1) + 0.05*priceFit + featuredBoost
//
// and keeps the intermediate terms in the item's ScoringDebug.
func ScoreItem(candidate models.Candidate, rc RankingContext) models.RankedItem {
	item := candidate.Item

	vScore := defaultVScore
	if candidate.Similarity != nil {
		vScore = *candidate.Similarity
	}

	vendorQuality := EffectiveVendorQuality(&item, rc.VendorTrust)

	vendorBoost := 0.0
	if record, ok := rc.VendorTrust[item.VendorID]; ok && record != nil && record.IsFeatured {
		vendorBoost = featuredVendorBoost
	}

	etaDays := defaultEtaDays
	if item.RawVendorData.EtaDays != nil {
		etaDays = *item.RawVendorData.EtaDays
	}
	if etaDays < 0 {
		etaDays = 0
	}
	etaScore := 1 / (etaDays + 1)

	priceFit := 1.0
	if rc.BudgetMax != nil && item.Price > *rc.BudgetMax && item.Price > 0 {
		priceFit = *rc.BudgetMax / item.Price
	}

	final := weightVScore*vScore +
		weightVendorQuality*vendorQuality +
		weightEta*etaScore +
		weightPriceFit*priceFit +
		vendorBoost

	return models.RankedItem{
		Item:       item,
		FinalScore: final,
		Debug: models.ScoringDebug{
			VScore:             vScore,
			VendorQualityScore: vendorQuality,
			EtaScore:           etaScore,
			PriceFit:           priceFit,
			VendorBoost:        vendorBoost,
			PricePenalty:       priceFit < 1,
		},
	}
}

// RankCandidates scores every candidate and sorts by final score, highest
// first. Ties keep their input order.
func RankCandidates(candidates []models.Candidate, rc RankingContext) []models.RankedItem {
	ranked := make([]models.RankedItem, len(candidates))
	for i, c := range candidates {
		ranked[i] = ScoreItem(c, rc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return ranked
}

// EffectiveVendorQuality prefers the trust record's success rate, then the
// vendor-reported quality, then a neutral default.
func EffectiveVendorQuality(item *models.CatalogItem, trust models.VendorTrustMap) float64 {
	if record, ok := trust[item.VendorID]; ok && record != nil {
		return record.SuccessRate / 100
	}
	if item.RawVendorData.VendorQuality != nil {
		return *item.RawVendorData.VendorQuality
	}
	return defaultVendorQuality
}
