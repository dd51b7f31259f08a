/*
Package adapter wires the MarFS components into one object with a start/stop
lifecycle, which the gomarfsd command drives.

# Components

New validates the configuration, converts its MarFS namespace/repository
table into namespaces (Configuration.BuildNamespaces), and builds:

  - the Path Resolver over those namespaces,
  - the Trash Manager, rooted at a ".trash" directory under the first
    namespace's MDFS root,
  - the quota checker, quota.AlwaysAllow.

New mounts nothing. Start then builds, in this order:

 1. the Prometheus metrics Recorder, registered with
    prometheus.DefaultRegisterer,
 2. a recovery manager (circuit breaker plus retry) behind the
    http.RoundTripper every object-store request goes through,
 3. the I/O engine,
 4. when health checks are enabled, a health checker with one MDFS-root
    reachability check per namespace, which it starts,
 5. the FUSE MountManager, which mounts the filesystem last.

Stop unmounts the filesystem, stops the health checker and shuts down the
recovery manager. It carries on past a failing step and returns the last
error it saw.

# Usage Example

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/gomarfs/config.yaml"); err != nil {
		log.Fatal(err)
	}

	a, err := adapter.New(ctx, "/mnt/marfs", cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer a.Stop(ctx)

# Errors

New and Start return the first error they meet, wrapped with the step that
failed. Start does not undo the steps that succeeded before a failure. Start
on a started adapter, and Stop on one that is not started, return an error.

# Concurrency

Adapter has no locking of its own; Start and Stop are not safe to call
concurrently.
*/
package adapter