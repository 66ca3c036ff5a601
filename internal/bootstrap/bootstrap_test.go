package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/media-upload-router/internal/config"
	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
)

func TestRecoveryConfigAppliesOverrides(t *testing.T) {
	rc := recoveryConfig(config.Config{
		RecoveryRetryMaxAttempts: 3,
		RecoveryRetryInitial:     2 * time.Second,
		RecoveryBreakerThreshold: 7,
		DNSFallbackEndpoints:     []string{"backup.example.com"},
		S3Regions:                []string{"eu-central-1", "eu-west-1"},
	})
	if rc.Retry.MaxAttempts != 3 || rc.Retry.InitialDelay != 2*time.Second {
		t.Fatalf("unexpected retry policy: %+v", rc.Retry)
	}
	if rc.Retry.MaxDelay != 16*time.Second {
		t.Fatalf("expected default max delay, got %s", rc.Retry.MaxDelay)
	}
	if rc.Breaker.FailureThreshold != 7 || rc.Breaker.CoolDown != 60*time.Second {
		t.Fatalf("unexpected breaker settings: %+v", rc.Breaker)
	}
	if len(rc.Regions) != 2 || rc.FallbackEndpoints[0] != "backup.example.com" {
		t.Fatalf("unexpected failover targets: %v %v", rc.Regions, rc.FallbackEndpoints)
	}
	if rc.Breaker.OnStateChange == nil {
		t.Fatalf("expected breaker transitions to be logged")
	}
}

func TestExecutorConfigConvertsUnits(t *testing.T) {
	ec := executorConfig(config.Config{
		RetryInitialBackoffMS:   150,
		RetryMaxBackoffMS:       900,
		BreakerMinRequests:      -1,
		BreakerHalfOpenMaxCalls: 3,
	})
	if ec.RetryInitialBackoff != 150*time.Millisecond || ec.RetryMaxBackoff != 900*time.Millisecond {
		t.Fatalf("unexpected backoff: %s %s", ec.RetryInitialBackoff, ec.RetryMaxBackoff)
	}
	if ec.BreakerMinRequests != 0 || ec.BreakerHalfOpenMaxCalls != 3 {
		t.Fatalf("unexpected breaker counts: %d %d", ec.BreakerMinRequests, ec.BreakerHalfOpenMaxCalls)
	}
}

func TestNewCoreUsesDefaultCatalog(t *testing.T) {
	core, err := NewCore(config.Config{AppEnv: "development", ResolverNaming: "timestamp"})
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	if _, ok := core.Flags.Catalog().Lookup(flags.FlagUseSmartRouter); !ok {
		t.Fatalf("expected default catalog to define %s", flags.FlagUseSmartRouter)
	}
	if core.Resolver == nil || core.Recommender == nil || core.Recovery == nil {
		t.Fatalf("expected all decision services to be built")
	}
}

func TestNewCoreRejectsBrokenCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	if err := os.WriteFile(path, []byte("flags: [unterminated"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := NewCore(config.Config{FlagCatalogPath: path}); err == nil {
		t.Fatalf("expected invalid catalog to fail startup")
	}
}

func TestWatchFlagCatalogWithoutPathIsNoop(t *testing.T) {
	core, err := NewCore(config.Config{})
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.WatchFlagCatalog(ctx)

	decision := core.Flags.Evaluate(ctx, flags.FlagUseSmartRouter, domain.FeatureFlagContext{UserID: "u1"})
	if decision.Feature != flags.FlagUseSmartRouter {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}
