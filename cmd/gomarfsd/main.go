// Command gomarfsd mounts a MarFS namespace/repository table as a FUSE
// filesystem: load configuration, build an adapter.Adapter, mount, and
// block until a termination signal triggers a graceful unmount.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mar-file-system/gomarfs/internal/adapter"
	"github.com/mar-file-system/gomarfs/internal/config"
)

func main() {
	configPath := flag.String("config", "/etc/gomarfs/config.yaml", "path to the YAML namespace/repository configuration")
	mountPoint := flag.String("mount", "", "mount point (overrides marfs.mount_point from the config file)")
	logLevel := flag.String("log-level", "", "override global.log_level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile(*configPath); err != nil {
		log.Fatalf("gomarfsd: %v", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatalf("gomarfsd: %v", err)
	}
	if *logLevel != "" {
		cfg.Global.LogLevel = *logLevel
	}

	mp := *mountPoint
	if mp == "" {
		mp = cfg.MarFS.MountPoint
	}
	if mp == "" {
		log.Fatalf("gomarfsd: no mount point given (set -mount or marfs.mount_point)")
	}

	if err := run(mp, cfg); err != nil {
		log.Fatalf("gomarfsd: %v", err)
	}
}

func run(mountPoint string, cfg *config.Configuration) error {
	ctx := context.Background()

	a, err := adapter.New(ctx, mountPoint, cfg)
	if err != nil {
		return fmt.Errorf("building adapter: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting adapter: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("gomarfsd: received %s, unmounting", sig)

	return a.Stop(ctx)
}
