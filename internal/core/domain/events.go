package domain

import "time"

type UploadEventKind string

const (
	UploadCompleted UploadEventKind = "uploads.completed"
	UploadFailed    UploadEventKind = "uploads.failed"
)

// UploadEvent is published after every upload attempt that reached the
// storage step.
type UploadEvent struct {
	Kind           UploadEventKind `json:"kind"`
	AssetID        string          `json:"assetId,omitempty"`
	OrganizationID string          `json:"organizationId"`
	UserID         string          `json:"userId"`
	CampaignID     string          `json:"campaignId,omitempty"`
	FileName       string          `json:"fileName"`
	StoragePath    string          `json:"storagePath,omitempty"`
	Status         AssetStatus     `json:"status,omitempty"`
	Category       ErrorCategory   `json:"category,omitempty"`
	Code           string          `json:"code,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	Attempts       int             `json:"attempts"`
	Timestamp      time.Time       `json:"timestamp"`
}

// OfflineUpload is a payload parked locally while the storage backend is
// unavailable.
type OfflineUpload struct {
	ID             string    `json:"id"`
	AssetID        string    `json:"assetId"`
	OrganizationID string    `json:"organizationId"`
	StoragePath    string    `json:"storagePath"`
	FileName       string    `json:"fileName"`
	MimeType       string    `json:"mimeType"`
	Payload        []byte    `json:"-"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PayloadInfo is what inspection learned about an upload body.
type PayloadInfo struct {
	Size        int64  `json:"size"`
	MimeType    string `json:"mimeType"`
	IsPDF       bool   `json:"isPdf"`
	PDFPages    int    `json:"pdfPages,omitempty"`
	Checksum    string `json:"checksum"`
	ContentKind string `json:"contentKind"`
}
