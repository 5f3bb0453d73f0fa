// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep failure messages
//     consistent across stages and classify them for the job store.
//   - Context helpers that stamp job IDs and stage names for logging.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
