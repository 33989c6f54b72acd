// Package sdk provides the API test harness: an environment-aware
// configuration layer, pluggable authentication strategies, a retry-wrapped
// request executor, response validation, and per-run result reporting.
//
// # Core Concepts
//
// The harness is organized around a few packages:
//
//   - config: environment-keyed YAML configuration with dotted-key lookups
//   - auth: authentication strategies (Basic, Bearer, ApiKey, OAuth2) and
//     the registry that dispatches them
//   - client: request building, retry execution, validation, and CEL
//     response assertions
//   - tokenstore: token caches for sharing credentials across runners
//   - report: run folders, attachments, and archived history
//
// # Getting Started
//
// Create a harness, start a run, and execute requests:
//
//	h, err := sdk.New(sdk.WithConfigDir("config"), sdk.WithEnvironment("qa"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	ctx := context.Background()
//	if err := h.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer h.FinalizeRun(ctx)
//
//	c, err := h.Client()
//	if err != nil {
//		log.Fatal(err)
//	}
//	resp, err := c.Get(ctx, "/users/1")
//
// Configuration lives in <dir>/config.yaml overlaid with
// <dir>/environments/<env>.yaml; the HARNESS_ENV variable selects the
// environment when none is given explicitly.
package sdk
