package domain

// UploadType names the role an uploaded file plays inside a campaign.
type UploadType string

const (
	UploadTypeHeroImage        UploadType = "hero-image"
	UploadTypeAttachment       UploadType = "attachment"
	UploadTypeGeneratedContent UploadType = "generated-content"
	UploadTypeBoilerplateAsset UploadType = "boilerplate-asset"
)

var uploadTypeFolders = map[UploadType]string{
	UploadTypeHeroImage:        "Hero-Images",
	UploadTypeAttachment:       "Attachments",
	UploadTypeGeneratedContent: "Generated-Content",
	UploadTypeBoilerplateAsset: "Boilerplate-Assets",
}

func (t UploadType) Valid() bool {
	_, ok := uploadTypeFolders[t]
	return ok
}

// Folder returns the leaf folder used for the type inside a campaign path.
func (t UploadType) Folder() string {
	return uploadTypeFolders[t]
}

func UploadTypes() []UploadType {
	return []UploadType{
		UploadTypeHeroImage,
		UploadTypeAttachment,
		UploadTypeGeneratedContent,
		UploadTypeBoilerplateAsset,
	}
}

type StorageType string

const (
	StorageOrganized   StorageType = "organized"
	StorageUnorganized StorageType = "unorganized"
)

// PipelineStage is the lifecycle phase of the owning project.
type PipelineStage string

const (
	StageIdeasPlanning    PipelineStage = "ideas_planning"
	StageCreation         PipelineStage = "creation"
	StageInternalApproval PipelineStage = "internal_approval"
	StageCustomerApproval PipelineStage = "customer_approval"
	StageDistribution     PipelineStage = "distribution"
	StageMonitoring       PipelineStage = "monitoring"
)

func (s PipelineStage) Known() bool {
	switch s {
	case StageIdeasPlanning, StageCreation, StageInternalApproval,
		StageCustomerApproval, StageDistribution, StageMonitoring:
		return true
	default:
		return false
	}
}

type MigrationInfo struct {
	FromStorage            StorageType `json:"fromStorage"`
	ToStorage              StorageType `json:"toStorage"`
	RequiresAssetMigration bool        `json:"requiresAssetMigration"`
	OldPath                string      `json:"oldPath"`
	NewPath                string      `json:"newPath"`
}

// UploadContext is the canonical, fully-defaulted view of an upload request.
type UploadContext struct {
	OrganizationID      string         `json:"organizationId"`
	UserID              string         `json:"userId"`
	CampaignID          string         `json:"campaignId"`
	CampaignName        string         `json:"campaignName"`
	SelectedProjectID   string         `json:"selectedProjectId"`
	SelectedProjectName string         `json:"selectedProjectName"`
	ClientID            string         `json:"clientId"`
	InheritedClientID   string         `json:"inheritedClientId"`
	PipelineStage       PipelineStage  `json:"pipelineStage"`
	UploadType          UploadType     `json:"uploadType"`
	SubType             string         `json:"subType"`
	IsHybridStorage     bool           `json:"isHybridStorage"`
	AutoTags            []string       `json:"autoTags"`
	MigrationInfo       *MigrationInfo `json:"migrationInfo,omitempty"`

	RequestingOrganizationID string `json:"requestingOrganizationId,omitempty"`
}

type StorageConfig struct {
	BasePath            string      `json:"basePath"`
	SubPath             string      `json:"subPath"`
	IsOrganized         bool        `json:"isOrganized"`
	StorageType         StorageType `json:"storageType"`
	PipelineIntegration bool        `json:"pipelineIntegration"`
}

// FullPath joins base and sub path without a trailing separator.
func (c StorageConfig) FullPath() string {
	if c.SubPath == "" {
		return c.BasePath
	}
	return c.BasePath + "/" + c.SubPath
}
