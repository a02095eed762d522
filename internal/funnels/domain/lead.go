package domain

import (
	"time"

	"github.com/google/uuid"
)

type LeadSource string

const (
	LeadSourceWeb      LeadSource = "web"
	LeadSourceWhatsApp LeadSource = "whatsapp"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusViewed    LeadStatus = "viewed"
	LeadStatusProcessed LeadStatus = "processed"
)

// Temperature is the coarse label assigned at lead creation. It is
// independent of the scored Tier.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

type QualificationLabel string

const (
	LabelNone      QualificationLabel = ""
	LabelQualified QualificationLabel = "qualified"
	LabelNoise     QualificationLabel = "noise"
)

// Lead is the converted outcome of a session.
type Lead struct {
	ID                 uuid.UUID
	FunnelID           uuid.UUID
	ClientID           uuid.UUID
	SessionID          *uuid.UUID
	Source             LeadSource
	ContactData        map[string]any
	Status             LeadStatus
	Temperature        Temperature
	QualificationLabel QualificationLabel
	CreatedAt          time.Time
	ContactedAt        *time.Time
	CAPISyncedAt       *time.Time
	CAPIEventID        string
}

// NewLead carries the fields required to create a lead.
type NewLead struct {
	FunnelID    uuid.UUID
	SessionID   *uuid.UUID
	Source      LeadSource
	ContactData map[string]any
	Temperature Temperature
}

// LeadInputs is everything the scoring engine reads for one lead.
type LeadInputs struct {
	LeadID      uuid.UUID
	AccountID   uuid.UUID
	CreatedAt   time.Time
	ContactedAt *time.Time
	Temperature Temperature
	Answers     Answers
	ContactData map[string]any
}

// ConversionTarget is a lead plus the ad-platform credentials of its client.
type ConversionTarget struct {
	Lead        Lead
	PixelID     string
	AccessToken string
}

var (
	warmBudgets = map[string]bool{"$1M+": true, "$500k - $1M": true}
)

// InitialTemperature derives the creation-time label from the nested
// qualification answers. Timeline beats budget when both apply.
func InitialTemperature(answers Answers) Temperature {
	temp := TemperatureCold
	if warmBudgets[answers.LookupString("qualification", "budget")] {
		temp = TemperatureWarm
	}
	switch answers.LookupString("qualification", "timeline") {
	case "ASAP":
		temp = TemperatureHot
	case "1-3 Months":
		if temp != TemperatureHot {
			temp = TemperatureWarm
		}
	}
	return temp
}

// ContactWithTracking merges attribution data under the explicit contact
// fields. Explicit contact values win on key collisions.
func ContactWithTracking(contact map[string]any, tracking map[string]any) map[string]any {
	out := make(map[string]any, len(contact)+len(tracking))
	for k, v := range tracking {
		out[k] = v
	}
	for k, v := range contact {
		out[k] = v
	}
	return out
}
