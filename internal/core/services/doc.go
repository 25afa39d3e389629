// Package services implements the driving port interfaces.
// Services contain the core business logic: the ingestion job queue
// and its stage pipeline, the embedding batcher, the retrieval
// orchestrator, and the source catalog. Services orchestrate calls to
// driven ports (adapters) and never touch infrastructure directly.
package services
