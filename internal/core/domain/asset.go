package domain

import "time"

type AssetStatus string

const (
	AssetStored        AssetStatus = "stored"
	AssetQueuedOffline AssetStatus = "queued_offline"
	AssetMigrated      AssetStatus = "migrated"
)

// Asset is the metadata record of an uploaded file.
type Asset struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organizationId"`
	UserID         string      `json:"userId"`
	CampaignID     string      `json:"campaignId,omitempty"`
	ProjectID      string      `json:"projectId,omitempty"`
	ClientID       string      `json:"clientId,omitempty"`
	FileName       string      `json:"fileName"`
	MimeType       string      `json:"mimeType"`
	Size           int64       `json:"size"`
	StoragePath    string      `json:"storagePath"`
	StorageType    StorageType `json:"storageType"`
	UploadType     UploadType  `json:"uploadType"`
	Tags           []string    `json:"tags"`
	Status         AssetStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// AssetFilter selects assets of one organization carrying every listed tag.
type AssetFilter struct {
	OrganizationID string
	Tags           []string
	Limit          int
}
