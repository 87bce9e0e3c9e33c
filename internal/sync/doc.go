// Package sync pulls new TestFlight submissions from App Store Connect into
// the local store and backfills their artifacts.
//
// Overview
//
// A run processes each configured app in turn:
//
//	FindApp(bundle id) ── UpsertSource
//	     │
//	     ├── Walker.Walk(crash)      pages newest first, INSERT … DO NOTHING
//	     ├── Recoverer.Recover(crash)    one fetch per record lacking a log
//	     ├── Walker.Walk(feedback)
//	     └── Recoverer.Recover(feedback) one fetch per record lacking a screenshot
//
// Walking stops at the first page whose entries are all already stored, at an
// empty page, when the remote returns no next cursor, or at the page ceiling.
// Run cost is therefore proportional to what is new since the last run. This
// relies on the remote keeping a stable newest-first order; a record that is
// reordered or backdated behind a known page is not seen again.
//
// Failures are contained: a source that cannot be resolved is reported and the
// next source runs; a page fetch error ends that kind's walk but recovery still
// runs; a failed artifact is logged and retried on the next run.
//
// Usage
//
//	engine := sync.New(sync.Config{
//	    Store:  st,
//	    Remote: client,
//	    Sink:   artifact.NewSink(dataDir),
//	    Apps:   []sync.App{{BundleID: "com.example.app"}},
//	    Logger: logger,
//	})
//	report, err := engine.Sync(ctx, sync.Options{})
package sync
