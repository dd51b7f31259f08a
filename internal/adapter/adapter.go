// Package adapter wires the MarFS components -- Path Resolver, Trash
// Manager, Quota Checker, I/O Engine, metrics Recorder, and FUSE
// MountManager -- into one lifecycle object a command-line entrypoint can
// start and stop, the same role the teacher's Adapter plays for its
// S3-backend/cache/write-buffer stack.
package adapter

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mar-file-system/gomarfs/internal/circuit"
	"github.com/mar-file-system/gomarfs/internal/config"
	marfsfuse "github.com/mar-file-system/gomarfs/internal/marfs/fuse"
	marfsmetrics "github.com/mar-file-system/gomarfs/internal/marfs/metrics"
	"github.com/mar-file-system/gomarfs/internal/marfs/pathresolver"
	"github.com/mar-file-system/gomarfs/internal/marfs/quota"
	"github.com/mar-file-system/gomarfs/internal/marfs/trash"
	"github.com/mar-file-system/gomarfs/internal/health"
	"github.com/mar-file-system/gomarfs/pkg/recovery"
	"github.com/mar-file-system/gomarfs/pkg/retry"

	"github.com/mar-file-system/gomarfs/internal/marfs/engine"
)

// Adapter owns one mounted MarFS instance: the engine serving it, the
// health checker watching its namespaces, and the MountManager holding
// the kernel FUSE session.
type Adapter struct {
	mountPoint string
	config     *config.Configuration

	resolver *pathresolver.Resolver
	trash    *trash.Manager
	quota    quota.Checker
	metrics  *marfsmetrics.Recorder
	recovery *recovery.RecoveryManager
	health   *health.Checker
	engine   *engine.Engine
	mountMgr *marfsfuse.MountManager

	started bool
}

// New validates cfg and builds the namespace/repository table, but does
// not mount anything; call Start to bring the filesystem up.
func New(ctx context.Context, mountPoint string, cfg *config.Configuration) (*Adapter, error) {
	if mountPoint == "" {
		return nil, fmt.Errorf("mount point cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	namespaces, err := cfg.BuildNamespaces()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("invalid configuration: no namespaces defined")
	}

	resolver := pathresolver.New(namespaces)

	var quotaChecker quota.Checker = quota.AlwaysAllow{}
	if cfg.Performance.MaxConcurrency < 0 {
		return nil, fmt.Errorf("invalid configuration: negative max concurrency")
	}

	a := &Adapter{
		mountPoint: mountPoint,
		config:     cfg,
		resolver:   resolver,
		quota:      quotaChecker,
		trash:      trash.New(trashRootFor(mountPoint, cfg)),
	}
	return a, nil
}

// trashRootFor derives the MDFS-side trash directory from the first
// namespace's MDFS root (§4.6); every namespace shares that one ".trash"
// directory, and no config field overrides it. With no namespace root it
// falls back to a ".trash" directory under the mount point.
func trashRootFor(mountPoint string, cfg *config.Configuration) string {
	if len(cfg.MarFS.Namespaces) > 0 && cfg.MarFS.Namespaces[0].MDFSRoot != "" {
		return cfg.MarFS.Namespaces[0].MDFSRoot + "/.trash"
	}
	return mountPoint + "/.trash"
}

// Start initializes and mounts the filesystem.
func (a *Adapter) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("adapter already started")
	}

	log.Printf("starting gomarfs adapter")
	log.Printf("mount point: %s", a.mountPoint)
	log.Printf("namespaces: %d", len(a.config.MarFS.Namespaces))

	var err error
	a.metrics, err = marfsmetrics.New(prometheus.DefaultRegisterer, "gomarfs")
	if err != nil {
		return fmt.Errorf("failed to initialize metrics recorder: %w", err)
	}

	breakerCfg := circuit.Config{
		MaxRequests: 1,
		Interval:    0,
		Timeout:     a.config.Network.CircuitBreaker.Timeout,
	}
	if !a.config.Network.CircuitBreaker.Enabled {
		breakerCfg.Timeout = 0
	}
	a.recovery = recovery.NewRecoveryManager(recovery.RecoveryConfig{
		DefaultStrategy: recovery.StrategyCircuitBreaker,
		RetryConfig: retry.Config{
			MaxAttempts:  a.config.Network.Retry.MaxAttempts,
			InitialDelay: a.config.Network.Retry.BaseDelay,
			MaxDelay:     a.config.Network.Retry.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		CircuitBreakerConfig: breakerCfg,
		EnableAutoRecovery:   true,
		MaxRecoveryAttempts:  3,
	})

	client := &http.Client{
		Timeout:   a.config.Network.Timeouts.Read,
		Transport: &recoveringTransport{base: http.DefaultTransport, rm: a.recovery},
	}

	a.engine = engine.New(a.resolver, a.trash, a.quota, client)
	a.engine.Metrics = a.metrics

	if a.config.Monitoring.HealthChecks.Enabled {
		a.health, err = health.NewChecker(&health.Config{
			Enabled:       true,
			CheckInterval: a.config.Monitoring.HealthChecks.Interval,
			Timeout:       a.config.Monitoring.HealthChecks.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize health checker: %w", err)
		}
		for _, ns := range a.config.MarFS.Namespaces {
			mdfsRoot := ns.MDFSRoot
			if err := a.health.RegisterCheck(
				"mdfs_reachable_"+ns.Name,
				fmt.Sprintf("namespace %s MDFS root is reachable", ns.Name),
				health.CategoryStorage, health.PriorityCritical,
				mdfsRootCheck(mdfsRoot),
			); err != nil {
				return fmt.Errorf("failed to register health check: %w", err)
			}
		}
		if err := a.health.Start(ctx); err != nil {
			return fmt.Errorf("failed to start health checker: %w", err)
		}
	}

	a.mountMgr = marfsfuse.NewMountManager(a.engine, a.mountPoint)
	if err := a.mountMgr.Mount(&marfsfuse.MountOptions{
		FSName:     "gomarfs",
		AllowOther: a.config.Security.Enabled,
		Debug:      a.config.Global.LogLevel == "DEBUG",
	}); err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	a.started = true
	log.Printf("gomarfs adapter started successfully")
	return nil
}

// Stop unmounts the filesystem and stops background workers.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started {
		return fmt.Errorf("adapter not started")
	}

	log.Printf("stopping gomarfs adapter")

	var lastErr error

	if a.mountMgr != nil && a.mountMgr.IsMounted() {
		if err := a.mountMgr.Unmount(); err != nil {
			log.Printf("error unmounting filesystem: %v", err)
			lastErr = err
		}
	}

	if a.health != nil {
		if err := a.health.Stop(); err != nil {
			log.Printf("error stopping health checker: %v", err)
			lastErr = err
		}
	}

	if a.recovery != nil {
		if err := a.recovery.Shutdown(ctx); err != nil {
			log.Printf("error shutting down recovery manager: %v", err)
			lastErr = err
		}
	}

	a.started = false
	log.Printf("gomarfs adapter stopped successfully")
	return lastErr
}

// mdfsRootCheck builds a health.CheckFunction that stats a namespace's
// MDFS root, the same reachability signal the original driver's mount
// probe relies on before serving any path under that namespace.
func mdfsRootCheck(mdfsRoot string) health.CheckFunction {
	return func(ctx context.Context) error {
		fi, err := os.Stat(mdfsRoot)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return fmt.Errorf("mdfs root %s is not a directory", mdfsRoot)
		}
		return nil
	}
}

// recoveringTransport routes every request through the adapter's
// RecoveryManager, which wraps retry and circuit-breaker behavior
// around the underlying RoundTrip per host repository's Object Stream
// traffic (§4.3, §9's backoff requirement).
type recoveringTransport struct {
	base http.RoundTripper
	rm   *recovery.RecoveryManager
}

func (t *recoveringTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.rm.ExecuteWithResult(req.Context(), "objectstore", strings.ToLower(req.Method), func() (interface{}, error) {
		r, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("object store returned %s", r.Status)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}
