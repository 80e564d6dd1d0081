package ups

// TrackingResponse is the raw reply from the UPS tracking endpoint for one
// inquiry. Every nested level is optional: the carrier omits whole branches
// freely, so consumers must treat each access as potentially absent and
// resolve missing shape through the excluded path, never by panicking.
type TrackingResponse struct {
	TrackResponse *TrackResponseBody `json:"trackResponse,omitempty"`
}

// TrackResponseBody wraps the shipments matched by the inquiry.
type TrackResponseBody struct {
	Shipments []Shipment `json:"shipment,omitempty"`
}

// Shipment is one matched shipment.
type Shipment struct {
	InquiryNumber string    `json:"inquiryNumber,omitempty"`
	Packages      []Package `json:"package,omitempty"`
}

// Package is one physical package within a shipment.
type Package struct {
	TrackingNumber string     `json:"trackingNumber,omitempty"`
	Activities     []Activity `json:"activity,omitempty"`
}

// Activity is one carrier-reported event.
type Activity struct {
	Status *ActivityStatus `json:"status,omitempty"`
	Date   string          `json:"date,omitempty"`
	Time   string          `json:"time,omitempty"`
}

// ActivityStatus carries the coded status of one activity.
type ActivityStatus struct {
	Description string `json:"description"`
	Code        string `json:"code"`
	Type        string `json:"type"`
}

// Activities flattens every activity across all shipments and packages in
// document order. Nil-safe on every level.
func (r *TrackingResponse) Activities() []Activity {
	if r == nil || r.TrackResponse == nil {
		return nil
	}
	var out []Activity
	for _, shipment := range r.TrackResponse.Shipments {
		for _, pkg := range shipment.Packages {
			out = append(out, pkg.Activities...)
		}
	}
	return out
}
