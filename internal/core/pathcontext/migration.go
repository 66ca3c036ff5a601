package pathcontext

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// StorageAnalysis counts assets by storage layout for one scope.
type StorageAnalysis struct {
	TotalAssets       int `json:"totalAssets"`
	OrganizedAssets   int `json:"organizedAssets"`
	UnorganizedAssets int `json:"unorganizedAssets"`
}

type MigrationRecommendation struct {
	ShouldMigrate    bool     `json:"shouldMigrate"`
	Reason           string   `json:"reason"`
	Priority         Priority `json:"priority"`
	EstimatedBenefit int      `json:"estimatedBenefit"`
}

func GenerateMigrationRecommendations(analysis StorageAnalysis) MigrationRecommendation {
	total := int(NormalizeMetric(float64(analysis.TotalAssets)))
	unorganized := int(NormalizeMetric(float64(analysis.UnorganizedAssets)))
	if total == 0 {
		return MigrationRecommendation{
			Reason:   "no assets to migrate",
			Priority: PriorityLow,
		}
	}
	if unorganized > total {
		unorganized = total
	}

	ratio := float64(unorganized) / float64(total)
	rec := MigrationRecommendation{
		ShouldMigrate:    ratio >= 0.5,
		Reason:           fmt.Sprintf("%d%% unorganized assets", int(math.Round(ratio*100))),
		EstimatedBenefit: int(math.Round(ratio * 100)),
	}
	switch {
	case ratio >= 0.7:
		rec.Priority = PriorityHigh
	case ratio >= 0.4:
		rec.Priority = PriorityMedium
	default:
		rec.Priority = PriorityLow
	}
	return rec
}

// CampaignStorage summarises the layout of one campaign.
type CampaignStorage struct {
	CampaignID             string                    `json:"campaignId"`
	TotalAssets            int                       `json:"totalAssets"`
	OrganizedAssets        int                       `json:"organizedAssets"`
	UnorganizedAssets      int                       `json:"unorganizedAssets"`
	UploadTypeDistribution map[domain.UploadType]int `json:"uploadTypeDistribution"`
	IsHybridCampaign       bool                      `json:"isHybridCampaign"`
}

// AnalyzeCampaignStorage reads storage kind and upload type from the auto
// tags written at upload time.
func AnalyzeCampaignStorage(assets []domain.Asset) CampaignStorage {
	out := CampaignStorage{UploadTypeDistribution: map[domain.UploadType]int{}}
	for _, asset := range assets {
		out.TotalAssets++
		if out.CampaignID == "" {
			out.CampaignID = asset.CampaignID
		}

		storage := asset.StorageType
		uploadType := asset.UploadType
		for _, tag := range asset.Tags {
			switch {
			case strings.HasPrefix(tag, "storage:"):
				storage = domain.StorageType(strings.TrimPrefix(tag, "storage:"))
			case strings.HasPrefix(tag, "upload-type:"):
				uploadType = domain.UploadType(strings.TrimPrefix(tag, "upload-type:"))
			}
		}

		if storage == domain.StorageOrganized {
			out.OrganizedAssets++
		} else {
			out.UnorganizedAssets++
		}
		if uploadType != "" {
			out.UploadTypeDistribution[uploadType]++
		}
	}
	out.IsHybridCampaign = out.OrganizedAssets > 0 && out.UnorganizedAssets > 0
	return out
}

type StorageOptimization struct {
	OrganizationID       string   `json:"organizationId"`
	Recommendations      []string `json:"recommendations"`
	PotentialSpaceSaving int      `json:"potentialSpaceSaving"`
	OrganizationBenefit  string   `json:"organizationBenefit"`
	UnorganizedCampaigns []string `json:"unorganizedCampaigns"`
}

func AnalyzeStorageOptimization(organizationID string, campaigns []CampaignStorage) StorageOptimization {
	out := StorageOptimization{
		OrganizationID:       organizationID,
		Recommendations:      []string{},
		UnorganizedCampaigns: []string{},
	}

	unorganizedAssets := 0
	for _, campaign := range campaigns {
		if campaign.UnorganizedAssets <= 0 {
			continue
		}
		unorganizedAssets += campaign.UnorganizedAssets
		out.UnorganizedCampaigns = append(out.UnorganizedCampaigns, campaign.CampaignID)
	}
	sort.Strings(out.UnorganizedCampaigns)

	if unorganizedAssets == 0 {
		out.OrganizationBenefit = "storage is already organized"
		return out
	}

	out.Recommendations = append(out.Recommendations, "Migrate unorganized campaigns")
	out.PotentialSpaceSaving = min(unorganizedAssets*10, 100)
	out.OrganizationBenefit = fmt.Sprintf(
		"%d assets in %d campaigns become reachable through project folders",
		unorganizedAssets, len(out.UnorganizedCampaigns),
	)
	return out
}
