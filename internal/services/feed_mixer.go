package services

import (
	"github.com/qlozet/stylefeed/pkg/models"
)

const (
	vendorCapWindow = 10
	vendorCapPerID  = 2
)

// mixPattern repeats every six slots: four garments, one accessory, one fabric.
var mixPattern = []models.ItemType{
	models.ItemTypeGarment,
	models.ItemTypeGarment,
	models.ItemTypeAccessory,
	models.ItemTypeGarment,
	models.ItemTypeGarment,
	models.ItemTypeFabric,
}

type mixStream struct {
	name   models.Stream
	items  []models.RankedItem
	cursor int
}

type feedMixer struct {
	streams      map[models.ItemType]*mixStream
	seen         map[string]struct{}
	vendorCounts map[string]int
	out          []models.RankedItem
}

// MixCandidates interleaves three ranked, type-homogeneous lists. While fewer
// than ten items have been placed, a candidate whose vendor already holds two
// of those slots is skipped for good. An exhausted stream yields its slot to
// the first non-empty stream in garment, accessory, fabric order.
func MixCandidates(garments, accessories, fabrics []models.RankedItem, limit int) []models.RankedItem {
	if limit <= 0 {
		return []models.RankedItem{}
	}

	m := &feedMixer{
		streams: map[models.ItemType]*mixStream{
			models.ItemTypeGarment:   {name: models.StreamGarments, items: garments},
			models.ItemTypeAccessory: {name: models.StreamAccessories, items: accessories},
			models.ItemTypeFabric:    {name: models.StreamFabrics, items: fabrics},
		},
		seen:         make(map[string]struct{}),
		vendorCounts: make(map[string]int),
		out:          make([]models.RankedItem, 0, limit),
	}

	for len(m.out) < limit {
		required := mixPattern[len(m.out)%len(mixPattern)]

		item, ok := m.next(required)
		if !ok {
			for _, fallback := range models.ItemTypes {
				if fallback == required {
					continue
				}
				if item, ok = m.next(fallback); ok {
					break
				}
			}
		}
		if !ok {
			break
		}

		m.out = append(m.out, item)
	}

	return m.out
}

func (m *feedMixer) next(t models.ItemType) (models.RankedItem, bool) {
	s := m.streams[t]
	for s.cursor < len(s.items) {
		item := s.items[s.cursor]
		s.cursor++

		if _, dup := m.seen[item.Item.ItemID]; dup {
			continue
		}
		inWindow := len(m.out) < vendorCapWindow
		if inWindow && m.vendorCounts[item.Item.VendorID] >= vendorCapPerID {
			continue
		}

		m.seen[item.Item.ItemID] = struct{}{}
		if inWindow {
			m.vendorCounts[item.Item.VendorID]++
		}
		item.Stream = s.name
		return item, true
	}
	return models.RankedItem{}, false
}

// SplitByType partitions ranked items into per-type streams, keeping order.
// Items of any other type belong to no stream and are dropped.
func SplitByType(items []models.RankedItem) (garments, accessories, fabrics []models.RankedItem) {
	for _, item := range items {
		switch item.Item.Type {
		case models.ItemTypeGarment:
			garments = append(garments, item)
		case models.ItemTypeAccessory:
			accessories = append(accessories, item)
		case models.ItemTypeFabric:
			fabrics = append(fabrics, item)
		}
	}
	return garments, accessories, fabrics
}
