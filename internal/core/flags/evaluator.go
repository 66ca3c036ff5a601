package flags

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/ports"
)

const (
	ReasonUnknownFeature      = "unknown_feature"
	ReasonEnvOverride         = "env_override"
	ReasonKillSwitch          = "kill_switch"
	ReasonEnableSwitch        = "enable_switch"
	ReasonTierInsufficient    = "tier_insufficient"
	ReasonRoleRequired        = "role_required"
	ReasonEnvironmentDisabled = "environment_disabled"
	ReasonDisabled            = "disabled"
	ReasonBetaOnly            = "beta_only"
	ReasonMissingDependencies = "missing_dependencies"
	ReasonCanary              = "canary_user"
	ReasonABTreatment         = "ab_treatment"
	ReasonABControl           = "ab_control"
	ReasonRolloutIncluded     = "rollout_included"
	ReasonRolloutExcluded     = "rollout_excluded"
	ReasonEnabled             = "enabled"

	overrideMasterEnv = "FEATURE_FLAG_OVERRIDE"
	overridePrefix    = "OVERRIDE_FEATURE_"
	defaultHistory    = 500
)

// Decision is the outcome of one flag evaluation.
type Decision struct {
	Feature             string   `json:"feature"`
	Enabled             bool     `json:"enabled"`
	Reason              string   `json:"reason"`
	MissingDependencies []string `json:"missingDependencies,omitempty"`
}

// Observer receives every evaluation and flag cache hit.
type Observer interface {
	ObserveFlagEvaluation(feature string, enabled bool)
	ObserveCacheHit(cache string)
}

type Option func(*Evaluator)

func WithTenantProvider(provider ports.TenantProvider) Option {
	return func(e *Evaluator) { e.tenants = provider }
}

func WithToggleRecorder(recorder ports.ToggleRecorder) Option {
	return func(e *Evaluator) { e.recorder = recorder }
}

// WithLookupEnv replaces os.LookupEnv for override switches.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(e *Evaluator) {
		if lookup != nil {
			e.lookupEnv = lookup
		}
	}
}

// WithHasher replaces the rollout hash. The function must return a value in
// [0,1) that is stable for a user id.
func WithHasher(hash func(userID string) float64) Option {
	return func(e *Evaluator) {
		if hash != nil {
			e.hash = hash
		}
	}
}

func WithEnvironment(env domain.Environment) Option {
	return func(e *Evaluator) {
		if env != "" {
			e.defaultEnv = env
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Evaluator) { e.observer = observer }
}

func WithHistorySize(size int) Option {
	return func(e *Evaluator) {
		if size > 0 {
			e.historySize = size
		}
	}
}

// Evaluator decides which optional behaviours are active for a caller.
// It never returns errors; diagnostics are available through LastError.
type Evaluator struct {
	tenants     ports.TenantProvider
	recorder    ports.ToggleRecorder
	lookupEnv   func(string) (string, bool)
	hash        func(string) float64
	defaultEnv  domain.Environment
	now         func() time.Time
	observer    Observer
	historySize int

	catalogMu sync.RWMutex
	catalog   *Catalog

	cacheMu sync.RWMutex
	cache   map[string]map[string]Decision

	diagMu    sync.Mutex
	lastError string
	history   []domain.ToggleEvent
}

func NewEvaluator(catalog *Catalog, opts ...Option) *Evaluator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	e := &Evaluator{
		catalog:     catalog,
		lookupEnv:   os.LookupEnv,
		hash:        UserHash,
		defaultEnv:  domain.EnvProduction,
		now:         time.Now,
		historySize: defaultHistory,
		cache:       make(map[string]map[string]Decision),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UserHash maps a user id to [0,1) with 32-bit FNV-1a.
func UserHash(userID string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return float64(h.Sum32()%10000) / 10000
}

// SetCatalog swaps the catalog and drops every memoized decision.
func (e *Evaluator) SetCatalog(catalog *Catalog) {
	if catalog == nil {
		return
	}
	e.catalogMu.Lock()
	e.catalog = catalog
	e.catalogMu.Unlock()
	e.InvalidateAll()
}

func (e *Evaluator) Catalog() *Catalog {
	e.catalogMu.RLock()
	defer e.catalogMu.RUnlock()
	return e.catalog
}

// IsFeatureEnabled evaluates feature for the caller and records a toggle
// event.
func (e *Evaluator) IsFeatureEnabled(ctx context.Context, feature string, fc domain.FeatureFlagContext) bool {
	decision := e.Evaluate(ctx, feature, fc)
	e.recordToggle(ctx, decision, fc)
	return decision.Enabled
}

// Evaluate returns the full decision without recording a toggle event.
func (e *Evaluator) Evaluate(ctx context.Context, feature string, fc domain.FeatureFlagContext) Decision {
	fc = e.normalizeContext(fc)
	name := NormalizeName(feature)
	pair, key := cacheKeys(fc, name)

	e.cacheMu.RLock()
	cached, ok := e.cache[pair][key]
	e.cacheMu.RUnlock()
	if ok {
		if e.observer != nil {
			e.observer.ObserveCacheHit("flags")
		}
		return cached
	}

	catalog := e.Catalog()
	org := e.organization(ctx, fc.OrganizationID)
	decision := e.evaluate(catalog, name, fc, org, map[string]bool{})

	if decision.Reason != ReasonUnknownFeature {
		e.cacheMu.Lock()
		if e.cache[pair] == nil {
			e.cache[pair] = make(map[string]Decision)
		}
		e.cache[pair][key] = decision
		e.cacheMu.Unlock()
	}
	if e.observer != nil {
		e.observer.ObserveFlagEvaluation(name, decision.Enabled)
	}
	return decision
}

// EvaluateAll evaluates every catalog flag for the caller.
func (e *Evaluator) EvaluateAll(ctx context.Context, fc domain.FeatureFlagContext) map[string]Decision {
	catalog := e.Catalog()
	out := make(map[string]Decision, len(catalog.Flags))
	for _, name := range catalog.Names() {
		out[name] = e.Evaluate(ctx, name, fc)
	}
	return out
}

// GetFeatureFlags projects EvaluateAll to enabled booleans.
func (e *Evaluator) GetFeatureFlags(ctx context.Context, fc domain.FeatureFlagContext) map[string]bool {
	all := e.EvaluateAll(ctx, fc)
	out := make(map[string]bool, len(all))
	for name, decision := range all {
		out[name] = decision.Enabled
	}
	return out
}

type CanEnableResult struct {
	Feature             string   `json:"feature"`
	CanEnable           bool     `json:"canEnable"`
	MissingDependencies []string `json:"missingDependencies"`
	Reason              string   `json:"reason"`
}

// CanEnableFeature reports whether every dependency of feature is enabled
// for the caller.
func (e *Evaluator) CanEnableFeature(ctx context.Context, feature string, fc domain.FeatureFlagContext) CanEnableResult {
	name := NormalizeName(feature)
	res := CanEnableResult{Feature: name, MissingDependencies: []string{}}

	def, ok := e.Catalog().Lookup(name)
	if !ok {
		e.setLastError(fmt.Sprintf("unknown feature flag: %s", feature))
		res.Reason = ReasonUnknownFeature
		return res
	}
	for _, dep := range def.DependsOn {
		if !e.Evaluate(ctx, dep, fc).Enabled {
			res.MissingDependencies = append(res.MissingDependencies, dep)
		}
	}
	res.CanEnable = len(res.MissingDependencies) == 0
	if res.CanEnable {
		res.Reason = "all dependencies enabled"
	} else {
		res.Reason = "missing dependencies: " + strings.Join(res.MissingDependencies, ", ")
	}
	return res
}

// ValidateFeatureDependencies checks the active catalog.
func (e *Evaluator) ValidateFeatureDependencies() []string {
	return e.Catalog().Validate()
}

// InvalidateCache forgets decisions of one user inside one organization.
func (e *Evaluator) InvalidateCache(userID, organizationID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	delete(e.cache, pairKey(userID, organizationID))
}

func (e *Evaluator) InvalidateAll() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache = make(map[string]map[string]Decision)
}

// LastError returns the most recent diagnostic, e.g. an unknown flag name.
func (e *Evaluator) LastError() string {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	return e.lastError
}

// RecentToggles returns up to limit toggle events, newest last.
func (e *Evaluator) RecentToggles(limit int) []domain.ToggleEvent {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	start := 0
	if limit > 0 && len(e.history) > limit {
		start = len(e.history) - limit
	}
	return slices.Clone(e.history[start:])
}

func (e *Evaluator) evaluate(catalog *Catalog, name string, fc domain.FeatureFlagContext, org domain.Organization, visiting map[string]bool) Decision {
	decision := Decision{Feature: name}

	def, ok := catalog.Lookup(name)
	if !ok {
		e.setLastError(fmt.Sprintf("unknown feature flag: %s", name))
		decision.Reason = ReasonUnknownFeature
		return decision
	}

	if enabled, ok := e.envOverride(def); ok {
		decision.Enabled = enabled
		decision.Reason = ReasonEnvOverride
		return decision
	}
	if def.OverrideEnv != "" && e.envIsTrue(def.OverrideEnv) {
		decision.Reason = ReasonKillSwitch
		return decision
	}
	if def.EnableEnv != "" && e.envIsTrue(def.EnableEnv) {
		decision.Enabled = true
		decision.Reason = ReasonEnableSwitch
		return decision
	}

	if def.MinTier != "" && org.Tier.Rank() < def.MinTier.Rank() {
		decision.Reason = ReasonTierInsufficient
		return decision
	}
	if def.RequiresRole != "" && !hasRole(fc, def.RequiresRole) {
		decision.Reason = ReasonRoleRequired
		return decision
	}

	enabled, envReason := environmentDefault(def, fc.Environment)
	if !enabled {
		decision.Reason = envReason
		return decision
	}

	if def.BetaOnly && !fc.BetaUser {
		decision.Reason = ReasonBetaOnly
		return decision
	}

	if len(def.DependsOn) > 0 {
		visiting[name] = true
		for _, dep := range def.DependsOn {
			if visiting[dep] || !e.evaluate(catalog, dep, fc, org, visiting).Enabled {
				decision.MissingDependencies = append(decision.MissingDependencies, dep)
			}
		}
		delete(visiting, name)
		if len(decision.MissingDependencies) > 0 {
			decision.Reason = ReasonMissingDependencies
			return decision
		}
	}

	decision.Enabled, decision.Reason = e.rollout(def, fc, org)
	return decision
}

func (e *Evaluator) rollout(def Definition, fc domain.FeatureFlagContext, org domain.Organization) (bool, string) {
	if slices.Contains(org.CanaryUsers, fc.UserID) && fc.UserID != "" {
		return true, ReasonCanary
	}

	userHash := e.hash(fc.UserID)
	if test, ok := org.ABTests[def.Name]; ok && test.Active {
		if userHash*100 < test.TreatmentPercentage {
			return true, ReasonABTreatment
		}
		return false, ReasonABControl
	}

	percentage, hasRollout := org.RolloutPercentages[def.Name]
	if !hasRollout && def.Rollout != nil && def.Rollout.Percentage != nil {
		percentage, hasRollout = *def.Rollout.Percentage, true
	}
	if !hasRollout {
		return true, ReasonEnabled
	}
	if userHash*100 <= percentage {
		return true, ReasonRolloutIncluded
	}
	return false, ReasonRolloutExcluded
}

// environmentDefault applies the per-environment overlay. Development
// unlocks debug and experimental flags, production switches experimental
// flags off.
func environmentDefault(def Definition, env domain.Environment) (bool, string) {
	enabled := def.Enabled
	if v, ok := def.Environments[string(env)]; ok {
		enabled = v
	}
	switch {
	case env == domain.EnvDevelopment && (def.Experimental || def.Group == GroupDebug):
		return true, ""
	case def.Experimental && env != domain.EnvDevelopment:
		return false, ReasonEnvironmentDisabled
	case !enabled:
		if _, overlaid := def.Environments[string(env)]; overlaid {
			return false, ReasonEnvironmentDisabled
		}
		return false, ReasonDisabled
	}
	return true, ""
}

func hasRole(fc domain.FeatureFlagContext, role string) bool {
	role = strings.ToLower(role)
	return strings.ToLower(fc.UserRole) == role || strings.ToLower(fc.OrganizationRole) == role
}

// envOverride reads OVERRIDE_FEATURE_<NAME> when FEATURE_FLAG_OVERRIDE=true.
func (e *Evaluator) envOverride(def Definition) (bool, bool) {
	if !e.envIsTrue(overrideMasterEnv) {
		return false, false
	}
	raw, ok := e.lookupEnv(overridePrefix + strings.ToUpper(def.Name))
	if !ok {
		return false, false
	}
	switch raw {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func (e *Evaluator) envIsTrue(key string) bool {
	raw, ok := e.lookupEnv(key)
	return ok && raw == "true"
}

func (e *Evaluator) organization(ctx context.Context, organizationID string) domain.Organization {
	fallback := domain.Organization{ID: organizationID, Tier: domain.TierBasic}
	if e.tenants == nil || organizationID == "" {
		return fallback
	}
	org, err := e.tenants.GetOrganization(ctx, organizationID)
	if err != nil || org == nil {
		e.setLastError(fmt.Sprintf("organization lookup failed for %s: %v", organizationID, err))
		slog.Warn("flag_tenant_lookup_failed", "organization_id", organizationID, "error", err)
		return fallback
	}
	return *org
}

func (e *Evaluator) normalizeContext(fc domain.FeatureFlagContext) domain.FeatureFlagContext {
	fc.OrganizationID = strings.TrimSpace(fc.OrganizationID)
	fc.UserID = strings.TrimSpace(fc.UserID)
	if fc.Environment == "" {
		fc.Environment = e.defaultEnv
	}
	return fc
}

func (e *Evaluator) recordToggle(ctx context.Context, decision Decision, fc domain.FeatureFlagContext) {
	if decision.Reason == ReasonUnknownFeature {
		return
	}
	event := domain.ToggleEvent{
		Feature:        decision.Feature,
		UserID:         fc.UserID,
		OrganizationID: fc.OrganizationID,
		Enabled:        decision.Enabled,
		Timestamp:      e.now().UTC(),
	}

	e.diagMu.Lock()
	e.history = append(e.history, event)
	if over := len(e.history) - e.historySize; over > 0 {
		e.history = slices.Delete(e.history, 0, over)
	}
	e.diagMu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.RecordToggle(ctx, event); err != nil {
			slog.Debug("flag_toggle_record_failed", "feature", event.Feature, "error", err)
		}
	}
}

func (e *Evaluator) setLastError(msg string) {
	e.diagMu.Lock()
	e.lastError = msg
	e.diagMu.Unlock()
}

func pairKey(userID, organizationID string) string {
	return userID + "\x00" + organizationID
}

func cacheKeys(fc domain.FeatureFlagContext, feature string) (string, string) {
	return pairKey(fc.UserID, fc.OrganizationID), fmt.Sprintf("%s|%s|%s|%s|%t",
		feature, fc.Environment, strings.ToLower(fc.UserRole), strings.ToLower(fc.OrganizationRole), fc.BetaUser)
}
