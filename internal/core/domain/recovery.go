package domain

type RetryParams struct {
	MaxRetries        int     `json:"maxRetries"`
	InitialDelayMs    int64   `json:"initialDelay"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	MaxDelayMs        int64   `json:"maxDelay"`
}

type CompressionParams struct {
	Quality      float64 `json:"quality"`
	MaxSizeBytes int64   `json:"maxSize,omitempty"`
	MaxWidth     int     `json:"maxWidth,omitempty"`
	MaxHeight    int     `json:"maxHeight,omitempty"`
	Format       string  `json:"format,omitempty"`
}

type TranscodeParams struct {
	Codec        string `json:"codec"`
	MaxBitrateKb int    `json:"maxBitrateKbps"`
	Resolution   string `json:"resolution"`
}

type AutoCorrection struct {
	OriginalFileName string `json:"originalFileName"`
	NewFileName      string `json:"newFileName"`
}

type GracefulDegradation struct {
	OfflineMode       bool `json:"offlineMode"`
	LocalCache        bool `json:"localCache"`
	SyncWhenAvailable bool `json:"syncWhenAvailable"`
}

// RecoveryDecision is the supervisor's answer to a single UploadError.
type RecoveryDecision struct {
	ErrorID  string        `json:"errorId"`
	Category ErrorCategory `json:"category"`
	Code     string        `json:"code"`
	Severity Severity      `json:"severity"`

	CanRecover bool   `json:"canRecover"`
	Strategy   string `json:"strategy"`

	Retry              *RetryParams         `json:"retry,omitempty"`
	WaitTimeMs         int64                `json:"waitTime,omitempty"`
	ResumeFrom         int64                `json:"resumeFrom,omitempty"`
	ResumeToken        string               `json:"resumeToken,omitempty"`
	FallbackEndpoints  []string             `json:"fallbackEndpoints,omitempty"`
	FallbackRegion     string               `json:"fallbackRegion,omitempty"`
	Compression        *CompressionParams   `json:"compression,omitempty"`
	Transcode          *TranscodeParams     `json:"transcode,omitempty"`
	QueuePosition      int                  `json:"queuePosition,omitempty"`
	AlternativeFormats []string             `json:"alternativeFormats,omitempty"`
	AutoCorrection     *AutoCorrection      `json:"autoCorrection,omitempty"`
	Alternatives       []Alternative        `json:"alternatives,omitempty"`
	Degradation        *GracefulDegradation `json:"gracefulDegradation,omitempty"`

	EnableIntegrityCheck bool `json:"enableIntegrityCheck,omitempty"`
	DisableSmartRouting  bool `json:"disableSmartRouting,omitempty"`
	UseSimplifiedLogic   bool `json:"useSimplifiedLogic,omitempty"`
	UsePartialContext    bool `json:"usePartialContext,omitempty"`
	ShowAlternatives     bool `json:"showAlternatives,omitempty"`

	RequiredAction     string   `json:"requiredAction,omitempty"`
	EscalationRequired bool     `json:"escalationRequired,omitempty"`
	EscalationTarget   string   `json:"escalationTarget,omitempty"`
	UpgradeRequired    bool     `json:"upgradeRequired,omitempty"`
	UpgradeURL         string   `json:"upgradeUrl,omitempty"`
	HelpLinks          []string `json:"helpLinks,omitempty"`
	Contact            string   `json:"contact,omitempty"`
	SecurityAlert      bool     `json:"securityAlert,omitempty"`
	LogSecurityEvent   bool     `json:"logSecurityEvent,omitempty"`
	Quarantined        bool     `json:"quarantined,omitempty"`
	StatusPageURL      string   `json:"statusPageUrl,omitempty"`

	UserMessage      string   `json:"userMessage"`
	SuggestedActions []string `json:"suggestedActions"`
}

// Retryable reports whether the decision asks the caller to repeat the upload
// automatically.
func (d RecoveryDecision) Retryable() bool {
	if !d.CanRecover {
		return false
	}
	switch d.Strategy {
	case StrategyExponentialBackoff, StrategyRetryWithVerification, StrategyWaitAndRetry,
		StrategyResumeUpload, StrategyEndpointFallback, StrategyRegionFailover, StrategyQueueAndWait:
		return true
	default:
		return false
	}
}

const (
	StrategyNone                  = "none"
	StrategyAutoRename            = "auto_rename"
	StrategyExponentialBackoff    = "exponential_backoff"
	StrategyQualityReduction      = "quality_reduction"
	StrategyEndpointFallback      = "endpoint_fallback"
	StrategyResumeUpload          = "resume_upload"
	StrategyEscalate              = "escalate"
	StrategyUpgradePlan           = "upgrade_plan"
	StrategyWaitForUnlock         = "wait_for_unlock"
	StrategySecurityReview        = "security_review"
	StrategyWaitAndRetry          = "wait_and_retry"
	StrategyRetryWithVerification = "retry_with_verification"
	StrategyRegionFailover        = "region_failover"
	StrategyQueueAndWait          = "queue_and_wait"
	StrategyCompressAndRetry      = "compress_and_retry"
	StrategyTranscodeAndRetry     = "transcode_and_retry"
	StrategyGracefulDegradation   = "graceful_degradation"
	StrategyManualRetry           = "manual_retry"
	StrategyFallbackToManual      = "fallback_to_manual"
	StrategyRuleBasedRouting      = "rule_based_routing"
	StrategyBasicFileTypeRouting  = "basic_file_type_routing"
	StrategyRequestUserSelection  = "request_user_selection"
)
