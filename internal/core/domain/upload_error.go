package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryNetwork     ErrorCategory = "network"
	CategoryPermissions ErrorCategory = "permissions"
	CategoryStorage     ErrorCategory = "storage"
	CategorySmartRouter ErrorCategory = "smart_router"
)

func (c ErrorCategory) Valid() bool {
	switch c {
	case CategoryValidation, CategoryNetwork, CategoryPermissions, CategoryStorage, CategorySmartRouter:
		return true
	default:
		return false
	}
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorDetails is the category-specific payload of an UploadError.
// Implementations live in this package only.
type ErrorDetails interface {
	Category() ErrorCategory
	sealed()
}

type ValidationDetails struct {
	FileName     string   `json:"fileName,omitempty"`
	FileSize     int64    `json:"fileSize,omitempty"`
	MaxSize      int64    `json:"maxSize,omitempty"`
	MimeType     string   `json:"mimeType,omitempty"`
	AllowedTypes []string `json:"allowedTypes,omitempty"`
	ScanResult   string   `json:"scanResult,omitempty"`
}

type NetworkDetails struct {
	Endpoint      string `json:"endpoint,omitempty"`
	UploadedBytes int64  `json:"uploadedBytes,omitempty"`
	TotalBytes    int64  `json:"totalBytes,omitempty"`
	ResumeToken   string `json:"resumeToken,omitempty"`
	BandwidthKbps int64  `json:"bandwidthKbps,omitempty"`
	TimeoutMs     int64  `json:"timeoutMs,omitempty"`
}

type PermissionDetails struct {
	RequiredRole           string    `json:"requiredRole,omitempty"`
	UserRole               string    `json:"userRole,omitempty"`
	LockedBy               string    `json:"lockedBy,omitempty"`
	EstimatedUnlock        time.Time `json:"estimatedUnlock,omitempty"`
	QuotaUsed              int64     `json:"quotaUsed,omitempty"`
	QuotaLimit             int64     `json:"quotaLimit,omitempty"`
	ResourceOrganizationID string    `json:"resourceOrganizationId,omitempty"`
	RequestingUserID       string    `json:"requestingUserId,omitempty"`
	OrganizationID         string    `json:"organizationId,omitempty"`
}

type StorageDetails struct {
	EstimatedRecovery time.Time `json:"estimatedRecovery,omitempty"`
	Region            string    `json:"region,omitempty"`
	AvailableRegions  []string  `json:"availableRegions,omitempty"`
	QueuePosition     int       `json:"queuePosition,omitempty"`
	Resource          string    `json:"resource,omitempty"`
	FileType          string    `json:"fileType,omitempty"`
	FileSize          int64     `json:"fileSize,omitempty"`
	MaxSize           int64     `json:"maxSize,omitempty"`
}

type RouterDetails struct {
	Confidence   float64       `json:"confidence,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	TimeoutMs    int64         `json:"timeoutMs,omitempty"`
	MissingInput []string      `json:"missingInput,omitempty"`
}

func (ValidationDetails) Category() ErrorCategory { return CategoryValidation }
func (NetworkDetails) Category() ErrorCategory    { return CategoryNetwork }
func (PermissionDetails) Category() ErrorCategory { return CategoryPermissions }
func (StorageDetails) Category() ErrorCategory    { return CategoryStorage }
func (RouterDetails) Category() ErrorCategory     { return CategorySmartRouter }

func (ValidationDetails) sealed() {}
func (NetworkDetails) sealed()    {}
func (PermissionDetails) sealed() {}
func (StorageDetails) sealed()    {}
func (RouterDetails) sealed()     {}

// UploadError describes a failed upload step. Message is internal detail and
// is never copied into user-facing output.
type UploadError struct {
	ID        string
	Category  ErrorCategory
	Code      string
	Severity  Severity
	Message   string
	Timestamp time.Time
	Details   ErrorDetails
}

func NewUploadError(code string, details ErrorDetails) *UploadError {
	return &UploadError{
		Category: details.Category(),
		Code:     code,
		Details:  details,
	}
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s.%s", e.Category, e.Code)
}

// Key identifies the error class, e.g. "network.CONNECTION_TIMEOUT".
func (e *UploadError) Key() string {
	return e.Error()
}

type uploadErrorJSON struct {
	ID        string          `json:"id,omitempty"`
	Category  ErrorCategory   `json:"category"`
	Code      string          `json:"code"`
	Severity  Severity        `json:"severity,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details,omitempty"`
}

func (e UploadError) MarshalJSON() ([]byte, error) {
	out := uploadErrorJSON{
		ID:        e.ID,
		Category:  e.Category,
		Code:      e.Code,
		Severity:  e.Severity,
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
	if e.Details != nil {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal error details: %w", err)
		}
		out.Details = raw
	}
	return json.Marshal(out)
}

func (e *UploadError) UnmarshalJSON(data []byte) error {
	var in uploadErrorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Category.Valid() {
		return fmt.Errorf("unknown error category %q", in.Category)
	}

	details, err := decodeDetails(in.Category, in.Details)
	if err != nil {
		return err
	}

	*e = UploadError{
		ID:        in.ID,
		Category:  in.Category,
		Code:      in.Code,
		Severity:  in.Severity,
		Message:   in.Message,
		Timestamp: in.Timestamp,
		Details:   details,
	}
	return nil
}

func decodeDetails(category ErrorCategory, raw json.RawMessage) (ErrorDetails, error) {
	empty := len(raw) == 0 || string(raw) == "null"

	var target ErrorDetails
	var err error
	switch category {
	case CategoryValidation:
		var d ValidationDetails
		if !empty {
			err = json.Unmarshal(raw, &d)
		}
		target = d
	case CategoryNetwork:
		var d NetworkDetails
		if !empty {
			err = json.Unmarshal(raw, &d)
		}
		target = d
	case CategoryPermissions:
		var d PermissionDetails
		if !empty {
			err = json.Unmarshal(raw, &d)
		}
		target = d
	case CategoryStorage:
		var d StorageDetails
		if !empty {
			err = json.Unmarshal(raw, &d)
		}
		target = d
	case CategorySmartRouter:
		var d RouterDetails
		if !empty {
			err = json.Unmarshal(raw, &d)
		}
		target = d
	default:
		return nil, fmt.Errorf("unknown error category %q", category)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", category, err)
	}
	return target, nil
}
