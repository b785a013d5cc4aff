package models

type VendorStatus string

const (
	VendorStatusPending  VendorStatus = "pending"
	VendorStatusInReview VendorStatus = "in_review"
	VendorStatusApproved VendorStatus = "approved"
	VendorStatusVerified VendorStatus = "verified"
	VendorStatusRejected VendorStatus = "rejected"
)

// VendorTrustRecord is owned by the business service and read-only here.
type VendorTrustRecord struct {
	VendorID    string       `json:"vendorId"`
	IsActive    bool         `json:"is_active"`
	Status      VendorStatus `json:"status"`
	SuccessRate float64      `json:"success_rate"`
	IsFeatured  bool         `json:"is_featured"`
}

// InGoodStanding reports whether the vendor may surface items in a feed.
func (v *VendorTrustRecord) InGoodStanding() bool {
	if !v.IsActive {
		return false
	}
	return v.Status == VendorStatusApproved || v.Status == VendorStatusVerified
}

// VendorTrustMap is keyed by vendor id. A vendor missing from the map is ungated.
type VendorTrustMap map[string]*VendorTrustRecord
