package recovery

const (
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeInvalidFileType    = "INVALID_FILE_TYPE"
	CodeSecurityScanFailed = "SECURITY_SCAN_FAILED"
	CodeInvalidFileName    = "INVALID_FILENAME"

	CodeConnectionTimeout     = "CONNECTION_TIMEOUT"
	CodeSlowConnection        = "SLOW_CONNECTION"
	CodeDNSResolutionFailed   = "DNS_RESOLUTION_FAILED"
	CodeConnectionInterrupted = "CONNECTION_INTERRUPTED"

	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeQuotaExceeded           = "QUOTA_EXCEEDED"
	CodePipelineLocked          = "PIPELINE_LOCKED"
	CodeCrossTenantAccessDenied = "CROSS_TENANT_ACCESS_DENIED"

	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	CodeUploadCorrupted       = "UPLOAD_CORRUPTED"
	CodeRegionUnavailable     = "REGION_UNAVAILABLE"
	CodeWriteLockConflict     = "WRITE_LOCK_CONFLICT"
	CodeCatastrophicFailure   = "STORAGE_SERVICE_CATASTROPHIC_FAILURE"
	CodeInternalServerError   = "INTERNAL_SERVER_ERROR"
	CodeRouterUnavailable     = "ROUTER_SERVICE_UNAVAILABLE"
	CodeAIModelTimeout        = "AI_MODEL_TIMEOUT"
	CodeContextBuildingFailed = "CONTEXT_BUILDING_FAILED"
	CodeLowConfidenceRouting  = "LOW_CONFIDENCE_ROUTING"
)
