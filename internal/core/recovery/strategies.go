package recovery

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
)

const (
	defaultUnlockWait   = 5 * time.Minute
	defaultRecoveryWait = 30 * time.Second
	slowLinkMaxBytes    = 5 << 20
)

// decide selects the strategy for ue. It is a pure function of the error,
// the supervisor configuration and the current time, except for the write
// lock queue lookup.
func (s *Supervisor) decide(ctx context.Context, ue *domain.UploadError) domain.RecoveryDecision {
	g := guidanceFor(ue)
	d := domain.RecoveryDecision{
		ErrorID:          ue.ID,
		Category:         ue.Category,
		Code:             ue.Code,
		Severity:         g.severity,
		UserMessage:      g.message,
		SuggestedActions: slices.Clone(g.actions),
	}
	if ue.Severity != "" {
		d.Severity = ue.Severity
	}

	switch ue.Category {
	case domain.CategoryValidation:
		details, _ := ue.Details.(domain.ValidationDetails)
		s.decideValidation(&d, ue.Code, details)
	case domain.CategoryNetwork:
		details, _ := ue.Details.(domain.NetworkDetails)
		s.decideNetwork(&d, ue.Code, details)
	case domain.CategoryPermissions:
		details, _ := ue.Details.(domain.PermissionDetails)
		s.decidePermissions(&d, ue.Code, details)
	case domain.CategoryStorage:
		details, _ := ue.Details.(domain.StorageDetails)
		s.decideStorage(ctx, &d, ue, details)
	case domain.CategorySmartRouter:
		details, _ := ue.Details.(domain.RouterDetails)
		s.decideRouter(&d, ue.Code, details)
	default:
		s.decideGeneric(&d)
	}
	return d
}

func (s *Supervisor) decideValidation(d *domain.RecoveryDecision, code string, details domain.ValidationDetails) {
	d.Strategy = domain.StrategyNone
	switch code {
	case CodeFileTooLarge:
		d.CanRecover = false
	case CodeInvalidFileType:
		d.CanRecover = false
		d.AlternativeFormats = []string{"pdf", "docx", "txt"}
	case CodeSecurityScanFailed:
		d.CanRecover = false
		d.Quarantined = true
		d.RequiredAction = "contact_admin"
		d.SecurityAlert = true
		d.LogSecurityEvent = true
		d.EscalationRequired = true
		d.EscalationTarget = "team_admin"
	case CodeInvalidFileName:
		d.CanRecover = true
		d.Strategy = domain.StrategyAutoRename
		d.AutoCorrection = &domain.AutoCorrection{
			OriginalFileName: details.FileName,
			NewFileName:      pathcontext.SanitizeFileName(details.FileName),
		}
	default:
		s.decideGeneric(d)
	}
}

func (s *Supervisor) decideNetwork(d *domain.RecoveryDecision, code string, details domain.NetworkDetails) {
	d.CanRecover = true
	switch code {
	case CodeConnectionTimeout:
		d.Strategy = domain.StrategyExponentialBackoff
		d.Retry = s.retryParams()
	case CodeSlowConnection:
		d.Strategy = domain.StrategyQualityReduction
		d.Compression = &domain.CompressionParams{Quality: 0.7, MaxSizeBytes: slowLinkMaxBytes}
	case CodeDNSResolutionFailed:
		endpoints := make([]string, 0, len(s.cfg.FallbackEndpoints))
		for _, endpoint := range s.cfg.FallbackEndpoints {
			if endpoint != details.Endpoint {
				endpoints = append(endpoints, endpoint)
			}
		}
		if len(endpoints) == 0 {
			d.Strategy = domain.StrategyManualRetry
			break
		}
		d.Strategy = domain.StrategyEndpointFallback
		d.FallbackEndpoints = endpoints
	case CodeConnectionInterrupted:
		d.Strategy = domain.StrategyResumeUpload
		d.ResumeFrom = max(details.UploadedBytes, 0)
		d.ResumeToken = details.ResumeToken
		if d.ResumeToken == "" {
			d.ResumeToken = uuid.NewString()
		}
	default:
		s.decideGeneric(d)
	}
}

func (s *Supervisor) decidePermissions(d *domain.RecoveryDecision, code string, details domain.PermissionDetails) {
	d.CanRecover = false
	switch code {
	case CodeInsufficientPermissions:
		d.Strategy = domain.StrategyEscalate
		d.EscalationRequired = true
		d.EscalationTarget = "team_admin"
	case CodeQuotaExceeded:
		d.Strategy = domain.StrategyUpgradePlan
		d.UpgradeRequired = true
		d.UpgradeURL = s.cfg.UpgradeURL
		d.HelpLinks = slices.Clone(s.cfg.HelpLinks)
		d.Contact = "billing_support"
	case CodePipelineLocked:
		d.CanRecover = true
		d.Strategy = domain.StrategyWaitForUnlock
		wait := defaultUnlockWait
		if !details.EstimatedUnlock.IsZero() {
			wait = max(details.EstimatedUnlock.Sub(s.clock.Now()), 0)
		}
		d.WaitTimeMs = wait.Milliseconds()
	case CodeCrossTenantAccessDenied:
		d.Strategy = domain.StrategySecurityReview
		d.SecurityAlert = true
		d.LogSecurityEvent = true
		d.RequiredAction = "security_review"
		slog.Warn("security_event",
			"code", code,
			"organization_id", details.OrganizationID,
			"resource_organization_id", details.ResourceOrganizationID,
			"user_id", details.RequestingUserID,
		)
	default:
		s.decideGeneric(d)
	}
}

func (s *Supervisor) decideStorage(ctx context.Context, d *domain.RecoveryDecision, ue *domain.UploadError, details domain.StorageDetails) {
	d.CanRecover = true
	switch ue.Code {
	case CodeServiceUnavailable:
		d.Strategy = domain.StrategyWaitAndRetry
		wait := defaultRecoveryWait
		if !details.EstimatedRecovery.IsZero() {
			wait = max(details.EstimatedRecovery.Sub(s.clock.Now()), 0)
		}
		d.WaitTimeMs = wait.Milliseconds()
		d.StatusPageURL = s.cfg.StatusPageURL
	case CodeUploadCorrupted:
		d.Strategy = domain.StrategyRetryWithVerification
		d.EnableIntegrityCheck = true
		d.Retry = &domain.RetryParams{
			MaxRetries:        3,
			InitialDelayMs:    s.cfg.Retry.InitialDelay.Milliseconds(),
			BackoffMultiplier: s.cfg.Retry.Multiplier,
			MaxDelayMs:        s.cfg.Retry.MaxDelay.Milliseconds(),
		}
	case CodeRegionUnavailable:
		region := pickRegion(details.Region, details.AvailableRegions, s.cfg.Regions)
		if region == "" {
			d.Strategy = domain.StrategyWaitAndRetry
			d.WaitTimeMs = defaultRecoveryWait.Milliseconds()
			d.StatusPageURL = s.cfg.StatusPageURL
			break
		}
		d.Strategy = domain.StrategyRegionFailover
		d.FallbackRegion = region
	case CodeWriteLockConflict:
		d.Strategy = domain.StrategyQueueAndWait
		d.QueuePosition = details.QueuePosition
		if d.QueuePosition <= 0 && s.locks != nil && details.Resource != "" {
			position, err := s.locks.Enqueue(ctx, details.Resource, ue.ID)
			if err != nil {
				slog.Warn("write_lock_queue_failed", "resource", details.Resource, "error", err)
			} else {
				d.QueuePosition = position
			}
		}
		if d.QueuePosition <= 0 {
			d.QueuePosition = 1
		}
	case CodeFileTooLarge:
		fileType := strings.ToLower(details.FileType)
		switch {
		case strings.HasPrefix(fileType, "image"):
			d.Strategy = domain.StrategyCompressAndRetry
			d.Compression = &domain.CompressionParams{Quality: 0.8, MaxWidth: 1920, MaxHeight: 1080, Format: "jpeg"}
		case strings.HasPrefix(fileType, "video"):
			d.Strategy = domain.StrategyTranscodeAndRetry
			d.Transcode = &domain.TranscodeParams{Codec: "h264", MaxBitrateKb: 5000, Resolution: "1080p"}
		default:
			d.CanRecover = false
			d.Strategy = domain.StrategyNone
		}
	case CodeCatastrophicFailure:
		d.Strategy = domain.StrategyGracefulDegradation
		d.Degradation = &domain.GracefulDegradation{OfflineMode: true, LocalCache: true, SyncWhenAvailable: true}
	case CodeInternalServerError:
		d.Strategy = domain.StrategyManualRetry
	default:
		s.decideGeneric(d)
	}
}

func (s *Supervisor) decideRouter(d *domain.RecoveryDecision, code string, details domain.RouterDetails) {
	d.CanRecover = true
	switch code {
	case CodeRouterUnavailable:
		d.Strategy = domain.StrategyFallbackToManual
		d.DisableSmartRouting = true
	case CodeAIModelTimeout:
		d.Strategy = domain.StrategyRuleBasedRouting
		d.UseSimplifiedLogic = true
	case CodeContextBuildingFailed:
		d.Strategy = domain.StrategyBasicFileTypeRouting
		d.UsePartialContext = true
	case CodeLowConfidenceRouting:
		d.Strategy = domain.StrategyRequestUserSelection
		d.ShowAlternatives = true
		d.Alternatives = slices.Clone(details.Alternatives)
		sort.SliceStable(d.Alternatives, func(i, j int) bool {
			return d.Alternatives[i].Confidence > d.Alternatives[j].Confidence
		})
	default:
		s.decideGeneric(d)
	}
}

// decideGeneric covers codes without a dedicated strategy.
func (s *Supervisor) decideGeneric(d *domain.RecoveryDecision) {
	switch d.Category {
	case domain.CategoryNetwork:
		d.CanRecover = true
		d.Strategy = domain.StrategyExponentialBackoff
		d.Retry = s.retryParams()
	case domain.CategoryStorage:
		d.CanRecover = true
		d.Strategy = domain.StrategyWaitAndRetry
		d.WaitTimeMs = defaultRecoveryWait.Milliseconds()
		d.StatusPageURL = s.cfg.StatusPageURL
	case domain.CategoryPermissions:
		d.CanRecover = false
		d.Strategy = domain.StrategyEscalate
		d.EscalationRequired = true
		d.EscalationTarget = "team_admin"
	case domain.CategorySmartRouter:
		d.CanRecover = true
		d.Strategy = domain.StrategyFallbackToManual
		d.DisableSmartRouting = true
	default:
		d.CanRecover = false
		d.Strategy = domain.StrategyNone
	}
}

func (s *Supervisor) retryParams() *domain.RetryParams {
	return &domain.RetryParams{
		MaxRetries:        s.cfg.Retry.MaxAttempts,
		InitialDelayMs:    s.cfg.Retry.InitialDelay.Milliseconds(),
		BackoffMultiplier: s.cfg.Retry.Multiplier,
		MaxDelayMs:        s.cfg.Retry.MaxDelay.Milliseconds(),
	}
}

func pickRegion(failed string, candidates ...[]string) string {
	for _, list := range candidates {
		for _, region := range list {
			if region != "" && region != failed {
				return region
			}
		}
	}
	return ""
}

// applyFlags downgrades decisions when the caller has the matching
// behaviour switched off.
func applyFlags(d *domain.RecoveryDecision, retryEnabled, routerFallbackEnabled bool) {
	if !retryEnabled {
		switch d.Strategy {
		case domain.StrategyExponentialBackoff, domain.StrategyWaitAndRetry, domain.StrategyRetryWithVerification:
			d.Strategy = domain.StrategyManualRetry
			d.Retry = nil
		}
	}
	if !routerFallbackEnabled && d.Strategy == domain.StrategyRuleBasedRouting {
		d.Strategy = domain.StrategyFallbackToManual
		d.UseSimplifiedLogic = false
		d.DisableSmartRouting = true
	}
}
