package domain

import "time"

// FolderKind is one of the folder types every project is expected to carry.
type FolderKind string

const (
	FolderDocuments     FolderKind = "documents"
	FolderMedia         FolderKind = "media"
	FolderPressReleases FolderKind = "press_releases"
)

func RequiredFolderKinds() []FolderKind {
	return []FolderKind{FolderDocuments, FolderMedia, FolderPressReleases}
}

type Project struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	OrganizationID string        `json:"organizationId"`
	ClientID       string        `json:"clientId,omitempty"`
	Company        string        `json:"company,omitempty"`
	CurrentStage   PipelineStage `json:"currentStage,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

type Folder struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           FolderKind `json:"kind,omitempty"`
	OrganizationID string     `json:"organizationId,omitempty"`
	ClientID       string     `json:"clientId,omitempty"`
}

type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
}

type Alternative struct {
	FolderID   string  `json:"folderId,omitempty"`
	Folder     string  `json:"folder"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type SecurityContext struct {
	TenantIsolation bool   `json:"tenantIsolation"`
	OrganizationID  string `json:"organizationId"`
}

type FolderRecommendation struct {
	FileName              string          `json:"fileName"`
	SuggestedFileName     string          `json:"suggestedFileName,omitempty"`
	TargetFolderID        string          `json:"targetFolderId"`
	TargetKind            FolderKind      `json:"targetKind"`
	FolderName            string          `json:"folderName"`
	Confidence            float64         `json:"confidence"`
	Reason                string          `json:"reason"`
	ConfidenceFactors     []string        `json:"confidenceFactors"`
	RequiresUserSelection bool            `json:"requiresUserSelection"`
	AutoAccept            bool            `json:"autoAccept"`
	BelowThreshold        bool            `json:"belowThreshold"`
	Alternatives          []Alternative   `json:"alternatives"`
	InheritedClientID     string          `json:"inheritedClientId,omitempty"`
	FolderPath            string          `json:"folderPath"`
	OrganizationID        string          `json:"organizationId"`
	SecurityContext       SecurityContext `json:"securityContext"`
}

type ProcessingStrategy string

const (
	ProcessParallel   ProcessingStrategy = "parallel"
	ProcessSequential ProcessingStrategy = "sequential"
)

type BatchGroup struct {
	TargetFolderID     string             `json:"targetFolderId"`
	TargetKind         FolderKind         `json:"targetKind"`
	Files              []string           `json:"files"`
	ProcessingStrategy ProcessingStrategy `json:"processingStrategy"`
	EstimatedTime      float64            `json:"estimatedTime"`
}
