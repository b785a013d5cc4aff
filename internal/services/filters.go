package services

import (
	"strings"

	"github.com/qlozet/stylefeed/pkg/models"
)

const demographicUnisex = "unisex"

type filterPredicate struct {
	reason models.DropReason
	drop   func(item *models.CatalogItem) bool
}

// ApplyHardFilters drops candidates failing any predicate and attributes each
// drop to the first predicate that failed. Predicates are independent, so
// their order affects only the counts. A nil trust map disables vendor gating;
// vendors absent from a non-nil map are not gated.
func ApplyHardFilters(candidates []models.Candidate, spec models.FilterSpec, trust models.VendorTrustMap) ([]models.Candidate, models.DropCounts) {
	chain := buildFilterChain(spec, trust)
	dropped := make(models.DropCounts)
	survivors := make([]models.Candidate, 0, len(candidates))

	for _, c := range candidates {
		item := c.Item
		kept := true
		for _, p := range chain {
			if p.drop(&item) {
				dropped[p.reason]++
				kept = false
				break
			}
		}
		if kept {
			survivors = append(survivors, c)
		}
	}

	return survivors, dropped
}

func buildFilterChain(spec models.FilterSpec, trust models.VendorTrustMap) []filterPredicate {
	var chain []filterPredicate

	if trust != nil {
		chain = append(chain, filterPredicate{models.DropVendorGated, func(item *models.CatalogItem) bool {
			record, ok := trust[item.VendorID]
			if !ok || record == nil {
				return false
			}
			return !record.InGoodStanding()
		}})
	}

	if spec.InStockOnly {
		chain = append(chain, filterPredicate{models.DropOutOfStock, func(item *models.CatalogItem) bool {
			qty := item.RawVendorData.InventoryQuantity
			return qty != nil && *qty <= 0
		}})
	}

	if spec.MaxPrice != nil {
		maxPrice := *spec.MaxPrice
		chain = append(chain, filterPredicate{models.DropOverBudget, func(item *models.CatalogItem) bool {
			return item.Price > maxPrice
		}})
	}

	if len(spec.BlockedVendors) > 0 {
		chain = append(chain, filterPredicate{models.DropBlockedVendor, func(item *models.CatalogItem) bool {
			_, blocked := spec.BlockedVendors[item.VendorID]
			return blocked
		}})
	}

	if gender := canonicalDemographic(spec.Gender); gender != "" {
		chain = append(chain, filterPredicate{models.DropDemographic, func(item *models.CatalogItem) bool {
			if item.FitMeta == nil {
				return false
			}
			target := canonicalDemographic(item.FitMeta.TargetDemographic)
			return target != "" && target != demographicUnisex && target != gender
		}})
	}

	if category := normalizeTag(spec.Category); category != "" {
		chain = append(chain, filterPredicate{models.DropCategory, func(item *models.CatalogItem) bool {
			if normalizeTag(string(item.Type)) == category {
				return false
			}
			for _, tag := range item.Tags {
				if normalizeTag(tag) == category {
					return false
				}
			}
			return true
		}})
	}

	return chain
}

// FilterQuery holds the request-level inputs to a FilterSpec.
type FilterQuery struct {
	BudgetMax      *float64
	DeadlineDays   *int
	DeliveryRegion string
	Gender         string
	Category       string
	IncludeOOS     bool
}

// BuildFilterSpec combines request parameters with what is known about the
// user: gender comes from the wears preference unless the request sets it and
// vendors the user hid are blocked.
func BuildFilterSpec(q FilterQuery, prefs *models.StylePreferences, events []models.Event) models.FilterSpec {
	spec := models.NewFilterSpec()
	spec.InStockOnly = !q.IncludeOOS
	spec.MaxPrice = q.BudgetMax
	spec.DeadlineDays = q.DeadlineDays
	spec.DeliveryRegion = q.DeliveryRegion
	spec.Category = strings.TrimSpace(q.Category)

	spec.Gender = normalizeTag(q.Gender)
	if spec.Gender == "" && prefs != nil {
		spec.Gender = genderFromWears(prefs.WearsPreference)
	}

	for i := range events {
		if events[i].EventType != models.EventHideBusiness {
			continue
		}
		if vendor := events[i].BusinessID(); vendor != "" {
			spec.BlockedVendors[vendor] = struct{}{}
		}
	}

	return spec
}

// genderFromWears maps a free-form wears preference to a target demographic.
// Preferences spanning both map to no constraint.
func genderFromWears(wears string) string {
	switch g := canonicalDemographic(wears); g {
	case "men", "women":
		return g
	default:
		return ""
	}
}

// canonicalDemographic folds the common spellings of men and women onto one
// value. Anything else, such as "kids", is returned normalized but unchanged.
func canonicalDemographic(s string) string {
	switch n := normalizeTag(s); n {
	case "men", "man", "male", "menswear", "mens":
		return "men"
	case "women", "woman", "female", "womenswear", "womens":
		return "women"
	default:
		return n
	}
}
