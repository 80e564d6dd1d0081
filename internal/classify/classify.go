package classify

import (
	"fmt"

	"github.com/noah-isme/labelsweep/internal/ups"
)

// LabelCreatedDescription is the carrier-canonical status description for a
// shipment whose label exists but which UPS has never received. The trailing
// space is part of the canonical string as UPS emits it; matching is
// byte-exact and must stay that way.
const LabelCreatedDescription = "Shipper created a label, UPS has not received the package yet. "

// Bucket names the three possible destinations of a tracking number.
type Bucket string

const (
	// BucketLabelOnly marks shipments with exactly one activity carrying the
	// canonical label-created description.
	BucketLabelOnly Bucket = "label_only"
	// BucketExcluded marks shipments whose status is known and disqualifying.
	BucketExcluded Bucket = "excluded"
	// BucketError marks shipments whose status could not be determined.
	BucketError Bucket = "error"
)

// Outcome is the classification result for one tracking number.
type Outcome struct {
	TrackingNumber string                `json:"tracking_number"`
	Bucket         Bucket                `json:"-"`
	Reason         string                `json:"reason"`
	Activity       *ups.Activity         `json:"activity,omitempty"`
	Response       *ups.TrackingResponse `json:"tracking_response,omitempty"`
}

// Classify applies the label-only rule to a raw tracking response. It is pure
// and total: any input, however malformed, resolves to exactly one outcome.
// Missing or unexpected shape is a known-and-disqualifying status (Excluded),
// never an error; request-level failures are represented by ErrorOutcome and
// never reach this function.
func Classify(trackingNumber string, resp *ups.TrackingResponse) Outcome {
	if resp == nil || resp.TrackResponse == nil {
		return Outcome{
			TrackingNumber: trackingNumber,
			Bucket:         BucketExcluded,
			Reason:         "response missing trackResponse",
			Response:       resp,
		}
	}

	activities := resp.Activities()
	switch {
	case len(activities) == 0:
		return Outcome{
			TrackingNumber: trackingNumber,
			Bucket:         BucketExcluded,
			Reason:         "no activity recorded",
			Response:       resp,
		}
	case len(activities) > 1:
		return Outcome{
			TrackingNumber: trackingNumber,
			Bucket:         BucketExcluded,
			Reason:         fmt.Sprintf("%d activity records, shipment has moved past label creation", len(activities)),
			Response:       resp,
		}
	}

	activity := activities[0]
	if activity.Status == nil {
		return Outcome{
			TrackingNumber: trackingNumber,
			Bucket:         BucketExcluded,
			Reason:         "single activity missing status",
			Response:       resp,
		}
	}
	if activity.Status.Description != LabelCreatedDescription {
		return Outcome{
			TrackingNumber: trackingNumber,
			Bucket:         BucketExcluded,
			Reason:         fmt.Sprintf("single activity status is %q", activity.Status.Description),
			Activity:       &activity,
			Response:       resp,
		}
	}
	return Outcome{
		TrackingNumber: trackingNumber,
		Bucket:         BucketLabelOnly,
		Reason:         "single activity with label-created status",
		Activity:       &activity,
		Response:       resp,
	}
}

// ErrorOutcome wraps a request-level failure for one tracking number. The
// status is unknown, which is semantically distinct from known and
// disqualifying.
func ErrorOutcome(trackingNumber string, err error) Outcome {
	reason := "request failed"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{
		TrackingNumber: trackingNumber,
		Bucket:         BucketError,
		Reason:         reason,
	}
}
