package models

import "time"

type EventType string

const (
	EventViewItem      EventType = "VIEW_ITEM"
	EventClickItem     EventType = "CLICK_ITEM"
	EventAddToCart     EventType = "ADD_TO_CART"
	EventSaveItem      EventType = "SAVE_ITEM"
	EventPurchase      EventType = "PURCHASE"
	EventNotInterested EventType = "NOT_INTERESTED"
	EventHideBusiness  EventType = "HIDE_BUSINESS"
	EventSearch        EventType = "SEARCH"
	EventImpression    EventType = "IMPRESSION"
)

// Event is an append-only behavioural record.
type Event struct {
	ID         string                 `json:"id,omitempty"`
	UserID     string                 `json:"userId" binding:"required"`
	SessionID  string                 `json:"sessionId,omitempty"`
	ItemID     string                 `json:"itemId,omitempty"`
	EventType  EventType              `json:"eventType" binding:"required"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Context    EventContext           `json:"context"`
	Metadata   EventMetadata          `json:"metadata"`
	Timestamp  time.Time              `json:"timestamp"`
}

type EventContext struct {
	Surface   string `json:"surface,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Position  *int   `json:"position,omitempty"`
	Stream    string `json:"stream,omitempty"`
}

type EventMetadata struct {
	ReasonCodes []ReasonCode `json:"reasonCodes,omitempty"`
	SeenIDs     []string     `json:"seenIds,omitempty"`
	DwellMs     *int64       `json:"dwellMs,omitempty"`
}

// BusinessID returns the vendor a HIDE_BUSINESS event targets.
func (e *Event) BusinessID() string {
	if e.Properties == nil {
		return ""
	}
	for _, key := range []string{"businessId", "vendorId", "vendor"} {
		if v, ok := e.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
