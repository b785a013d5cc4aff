package models

import (
	"fmt"
	"time"
)

// ItemType discriminates the catalog item variants.
type ItemType string

const (
	ItemTypeGarment   ItemType = "GARMENT"
	ItemTypeFabric    ItemType = "FABRIC"
	ItemTypeAccessory ItemType = "ACCESSORY"
)

// ItemTypes lists the catalog kinds in mixer fallback priority order.
var ItemTypes = []ItemType{ItemTypeGarment, ItemTypeAccessory, ItemTypeFabric}

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeGarment, ItemTypeFabric, ItemTypeAccessory:
		return true
	}
	return false
}

// CatalogItem is a sellable item. Exactly one of Garment, Fabric or
// Accessory carries the variant data matching Type.
type CatalogItem struct {
	ItemID        string          `json:"itemId"`
	Type          ItemType        `json:"type"`
	Title         string          `json:"title"`
	Price         float64         `json:"price"`
	Currency      string          `json:"currency"`
	VendorID      string          `json:"vendor"`
	Tags          []string        `json:"tags"`
	FitMeta       *FitMeta        `json:"fitMeta,omitempty"`
	Embeddings    *ItemEmbeddings `json:"embeddings,omitempty"`
	RawVendorData VendorData      `json:"rawVendorData"`
	CreatedAt     time.Time       `json:"createdAt"`

	Garment   *GarmentAttributes   `json:"garment,omitempty"`
	Fabric    *FabricAttributes    `json:"fabric,omitempty"`
	Accessory *AccessoryAttributes `json:"accessory,omitempty"`
}

// FitMeta describes who an item is cut for.
type FitMeta struct {
	TargetDemographic string `json:"targetDemographic,omitempty"`
	FitType           string `json:"fitType,omitempty"`
}

type ItemEmbeddings struct {
	EStyle  []float32 `json:"e_style,omitempty"`
	EFabric []float32 `json:"e_fabric,omitempty"`
}

// VendorData holds vendor-supplied operational fields. A nil pointer means
// the vendor did not report the value.
type VendorData struct {
	InventoryQuantity *int     `json:"inventory_quantity,omitempty"`
	EtaDays           *float64 `json:"eta_days,omitempty"`
	VendorQuality     *float64 `json:"vendorQuality,omitempty"`
}

type GarmentAttributes struct {
	Sizes      []string `json:"sizes,omitempty"`
	Silhouette string   `json:"silhouette,omitempty"`
}

type FabricAttributes struct {
	Material     string  `json:"material,omitempty"`
	WidthCm      float64 `json:"widthCm,omitempty"`
	PricePerYard bool    `json:"pricePerYard,omitempty"`
}

type AccessoryAttributes struct {
	Material string `json:"material,omitempty"`
	Slot     string `json:"slot,omitempty"`
}

// Kind checks that the discriminant and the populated variant agree.
func (c *CatalogItem) Kind() (ItemType, error) {
	if !c.Type.Valid() {
		return "", fmt.Errorf("item %s: unknown type %q", c.ItemID, c.Type)
	}

	populated := 0
	if c.Garment != nil {
		populated++
		if c.Type != ItemTypeGarment {
			return "", fmt.Errorf("item %s: garment attributes on %s", c.ItemID, c.Type)
		}
	}
	if c.Fabric != nil {
		populated++
		if c.Type != ItemTypeFabric {
			return "", fmt.Errorf("item %s: fabric attributes on %s", c.ItemID, c.Type)
		}
	}
	if c.Accessory != nil {
		populated++
		if c.Type != ItemTypeAccessory {
			return "", fmt.Errorf("item %s: accessory attributes on %s", c.ItemID, c.Type)
		}
	}
	if populated > 1 {
		return "", fmt.Errorf("item %s: multiple variants populated", c.ItemID)
	}

	return c.Type, nil
}

// StyleVector returns the item's style embedding, or nil before backfill.
func (c *CatalogItem) StyleVector() []float32 {
	if c.Embeddings == nil || len(c.Embeddings.EStyle) == 0 {
		return nil
	}
	return c.Embeddings.EStyle
}

// CatalogPatch is a partial update applied by CatalogRepository.Update.
type CatalogPatch struct {
	Title         *string         `json:"title,omitempty"`
	Price         *float64        `json:"price,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Embeddings    *ItemEmbeddings `json:"embeddings,omitempty"`
	RawVendorData *VendorData     `json:"rawVendorData,omitempty"`
}
