package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

type Config struct {
	Retry             resilience.RetryPolicy
	Breaker           resilience.BreakerSettings
	FallbackEndpoints []string
	Regions           []string
	StatusPageURL     string
	UpgradeURL        string
	HelpLinks         []string
	BatchConcurrency  int
	AnalyticsLimit    int
}

func DefaultConfig() Config {
	return Config{
		Retry:            resilience.DefaultRetryPolicy(),
		Breaker:          resilience.DefaultBreakerSettings(),
		StatusPageURL:    "https://status.example.com",
		UpgradeURL:       "/settings/billing",
		HelpLinks:        []string{"/help/storage-limits", "/help/plans"},
		BatchConcurrency: 4,
		AnalyticsLimit:   10000,
	}
}

// FlagChecker is the subset of the flag evaluator the supervisor consults.
type FlagChecker interface {
	IsFeatureEnabled(ctx context.Context, feature string, fc domain.FeatureFlagContext) bool
}

type Observer interface {
	ObserveRecoveryDecision(category, strategy string, recoverable bool)
	ObserveBreakerTransition(resource, to string)
}

type ProgressPhase string

const (
	PhaseAnalyzingError ProgressPhase = "analyzing_error"
	PhasePreparingRetry ProgressPhase = "preparing_retry"
	PhaseExecutingRetry ProgressPhase = "executing_retry"
	PhaseCompleted      ProgressPhase = "completed"
)

var phasePercent = map[ProgressPhase]int{
	PhaseAnalyzingError: 25,
	PhasePreparingRetry: 50,
	PhaseExecutingRetry: 75,
	PhaseCompleted:      100,
}

type ProgressUpdate struct {
	ErrorID string        `json:"errorId"`
	Phase   ProgressPhase `json:"phase"`
	Percent int           `json:"percent"`
}

type ProgressListener func(ProgressUpdate)

// HandleOptions tune a single HandleError or ExecuteWithRecovery call.
// A nil FlagContext skips flag checks and keeps every strategy enabled.
type HandleOptions struct {
	FlagContext *domain.FeatureFlagContext
	Progress    ProgressListener
}

type Option func(*Supervisor)

func WithClock(clock resilience.Clock) Option {
	return func(s *Supervisor) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithFlags(checker FlagChecker) Option {
	return func(s *Supervisor) {
		s.flags = checker
	}
}

func WithWriteLockQueue(queue ports.WriteLockQueue) Option {
	return func(s *Supervisor) {
		s.locks = queue
	}
}

func WithObserver(observer Observer) Option {
	return func(s *Supervisor) {
		s.observer = observer
	}
}

// Supervisor classifies upload failures, picks recovery strategies and
// drives retries behind per-resource circuit breakers.
type Supervisor struct {
	cfg       Config
	clock     resilience.Clock
	flags     FlagChecker
	locks     ports.WriteLockQueue
	observer  Observer
	breakers  *resilience.BreakerRegistry
	analytics *Analytics
}

func NewSupervisor(cfg Config, opts ...Option) *Supervisor {
	def := DefaultConfig()
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = def.BatchConcurrency
	}
	if cfg.AnalyticsLimit <= 0 {
		cfg.AnalyticsLimit = def.AnalyticsLimit
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if cfg.Breaker.CoolDown <= 0 {
		cfg.Breaker.CoolDown = def.Breaker.CoolDown
	}

	s := &Supervisor{
		cfg:   cfg,
		clock: resilience.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}

	settings := cfg.Breaker
	external := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to resilience.BreakerState) {
		if s.observer != nil {
			s.observer.ObserveBreakerTransition(name, string(to))
		}
		if external != nil {
			external(name, from, to)
		}
	}
	s.breakers = resilience.NewBreakerRegistry(settings, s.clock)
	s.analytics = NewAnalytics(cfg.AnalyticsLimit, s.clock)
	return s
}

func (s *Supervisor) Analytics() *Analytics {
	return s.analytics
}

func (s *Supervisor) BreakerSnapshots() []resilience.BreakerSnapshot {
	return s.breakers.Snapshots()
}

// HandleError classifies err and returns the recovery decision for it.
func (s *Supervisor) HandleError(ctx context.Context, err error, opts HandleOptions) domain.RecoveryDecision {
	ue := Classify(err)
	if ue == nil {
		return domain.RecoveryDecision{CanRecover: true, Strategy: domain.StrategyNone, SuggestedActions: []string{}}
	}
	return s.handle(ctx, ue, opts)
}

func (s *Supervisor) handle(ctx context.Context, ue *domain.UploadError, opts HandleOptions) domain.RecoveryDecision {
	if ue.ID == "" {
		ue.ID = uuid.NewString()
	}
	if ue.Timestamp.IsZero() {
		ue.Timestamp = s.clock.Now()
	}
	notify(opts.Progress, ue.ID, PhaseAnalyzingError)

	decision := s.decide(ctx, ue)
	retryEnabled, fallbackEnabled := true, true
	if s.flags != nil && opts.FlagContext != nil {
		retryEnabled = s.flags.IsFeatureEnabled(ctx, flags.FlagUploadRetry, *opts.FlagContext)
		fallbackEnabled = s.flags.IsFeatureEnabled(ctx, flags.FlagSmartRouterFallback, *opts.FlagContext)
	}
	applyFlags(&decision, retryEnabled, fallbackEnabled)

	s.analytics.RecordError(*ue)
	if s.observer != nil {
		s.observer.ObserveRecoveryDecision(string(decision.Category), decision.Strategy, decision.CanRecover)
	}

	level := slog.LevelInfo
	if decision.Severity == domain.SeverityHigh || decision.Severity == domain.SeverityCritical {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "upload_error_handled",
		"error_id", ue.ID,
		"category", string(ue.Category),
		"code", ue.Code,
		"strategy", decision.Strategy,
		"can_recover", decision.CanRecover,
		"detail", ue.Message,
	)
	notify(opts.Progress, ue.ID, PhaseCompleted)
	return decision
}

// Attempt is passed to the wrapped operation. Previous carries the decision
// that led to this attempt so the operation can switch region, endpoint or
// resume offset.
type Attempt struct {
	Number   int
	Previous *domain.RecoveryDecision
}

type ExecutionResult struct {
	Success    bool                     `json:"success"`
	Attempts   int                      `json:"attempts"`
	TotalDelay time.Duration            `json:"totalDelay"`
	Decision   *domain.RecoveryDecision `json:"decision,omitempty"`
	Err        error                    `json:"-"`
}

// ExecuteWithRecovery runs op behind the breaker named resource and repeats
// it while the recovery decision for its failure asks for an automatic retry.
func (s *Supervisor) ExecuteWithRecovery(
	ctx context.Context,
	resource string,
	op func(ctx context.Context, attempt Attempt) error,
	opts HandleOptions,
) ExecutionResult {
	breaker := s.breakers.Get(resource)

	var result ExecutionResult
	var previous *domain.RecoveryDecision
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if result.Err == nil {
				result.Err = err
			}
			break
		}

		result.Attempts = attempt
		current := Attempt{Number: attempt, Previous: previous}
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			return op(ctx, current)
		}, countsAgainstBreaker)
		if err == nil {
			result.Success = true
			result.Err = nil
			break
		}
		result.Err = err

		ue := Classify(err)
		if resilience.IsCircuitOpen(err) {
			ue = s.circuitOpenError(breaker, err)
		}
		decision := s.handle(ctx, ue, HandleOptions{FlagContext: opts.FlagContext})
		result.Decision = &decision
		if !decision.Retryable() {
			break
		}

		policy := s.policyFor(decision)
		if attempt >= policy.MaxAttempts {
			break
		}
		wait := s.waitFor(decision, policy, attempt)
		notify(opts.Progress, decision.ErrorID, PhasePreparingRetry)
		slog.Warn("upload_retry_scheduled",
			"resource", resource,
			"attempt", attempt,
			"strategy", decision.Strategy,
			"wait_ms", wait.Milliseconds(),
		)
		if sleepErr := s.clock.Sleep(ctx, wait); sleepErr != nil {
			break
		}
		result.TotalDelay += wait
		previous = &decision
		notify(opts.Progress, decision.ErrorID, PhaseExecutingRetry)
	}

	if result.Attempts > 1 {
		s.analytics.RecordRecovery(result.Success)
	}
	if result.Decision != nil {
		notify(opts.Progress, result.Decision.ErrorID, PhaseCompleted)
	}
	return result
}

func (s *Supervisor) circuitOpenError(breaker *resilience.Breaker, err error) *domain.UploadError {
	details := domain.StorageDetails{Resource: breaker.Name()}
	if snap := breaker.Snapshot(); snap.OpenedAt != nil {
		details.EstimatedRecovery = snap.OpenedAt.Add(s.cfg.Breaker.CoolDown)
	}
	ue := domain.NewUploadError(CodeServiceUnavailable, details)
	ue.Message = err.Error()
	return ue
}

func (s *Supervisor) policyFor(d domain.RecoveryDecision) resilience.RetryPolicy {
	policy := s.cfg.Retry
	if d.Retry != nil {
		policy = resilience.RetryPolicy{
			MaxAttempts:  d.Retry.MaxRetries + 1,
			InitialDelay: time.Duration(d.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(d.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:   d.Retry.BackoffMultiplier,
		}
	}
	return policy
}

// waitFor uses the decision's ETA for wait strategies, capped at the retry
// ceiling, and the backoff curve otherwise.
func (s *Supervisor) waitFor(d domain.RecoveryDecision, policy resilience.RetryPolicy, attempt int) time.Duration {
	switch d.Strategy {
	case domain.StrategyWaitAndRetry, domain.StrategyWaitForUnlock:
		wait := time.Duration(d.WaitTimeMs) * time.Millisecond
		return min(wait, s.cfg.Retry.Delay(s.cfg.Retry.MaxAttempts))
	case domain.StrategyResumeUpload, domain.StrategyEndpointFallback, domain.StrategyRegionFailover:
		return 0
	default:
		return policy.Delay(attempt)
	}
}

func notify(listener ProgressListener, errorID string, phase ProgressPhase) {
	if listener == nil {
		return
	}
	listener(ProgressUpdate{ErrorID: errorID, Phase: phase, Percent: phasePercent[phase]})
}
