// Package obs configures the tracekit export pipeline and owns the
// process-wide observability state.
//
// The package resolves a Config from explicit options and TRACEKIT_*
// environment variables, decides how providers are wired (create fresh ones,
// attach to an existing SDK installation, or stay disabled), and exposes
// tracers and meters that degrade to no-ops whenever the state is
// unconfigured. Setup failures never propagate: Configure degrades to the
// inert state with a logged warning.
//
// Typical wiring:
//
//	cfg := obs.Resolve(
//	    obs.WithAPIKey(key),
//	    obs.WithServiceName("pipeline-worker"),
//	)
//	obs.Configure(ctx, cfg)
//	defer obs.Shutdown(context.Background())
//
// Core logic operates on an explicit *State; the package-level functions are a
// thin convenience layer over Default().
package obs
