package domain

import "time"

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Tier is the subscription level of an organization.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Rank orders tiers; unknown tiers rank as basic.
func (t Tier) Rank() int {
	switch t {
	case TierProfessional:
		return 1
	case TierEnterprise:
		return 2
	default:
		return 0
	}
}

type FeatureFlagContext struct {
	OrganizationID   string      `json:"organizationId"`
	UserID           string      `json:"userId"`
	Environment      Environment `json:"environment"`
	UserRole         string      `json:"userRole,omitempty"`
	BetaUser         bool        `json:"betaUser"`
	ProjectID        string      `json:"projectId,omitempty"`
	CampaignID       string      `json:"campaignId,omitempty"`
	OrganizationRole string      `json:"organizationRole,omitempty"`
}

type ABTest struct {
	Active              bool    `json:"active"`
	TreatmentPercentage float64 `json:"treatmentPercentage"`
	TrackingEnabled     bool    `json:"trackingEnabled"`
}

// Organization carries the tenant attributes consulted during flag evaluation.
type Organization struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Tier               Tier               `json:"tier"`
	RolloutPercentages map[string]float64 `json:"rolloutPercentages,omitempty"`
	CanaryUsers        []string           `json:"canaryUsers,omitempty"`
	ABTests            map[string]ABTest  `json:"abTests,omitempty"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

type ToggleEvent struct {
	Feature        string    `json:"feature"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Enabled        bool      `json:"enabled"`
	Timestamp      time.Time `json:"timestamp"`
}
