// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Capability ports
//
// The four external capabilities consumed by the pipeline. Each is a
// narrow contract so tests can inject doubles that simulate transient
// failures deterministically:
//
//   - Fetcher: crawls a source into raw documents
//   - Embedder: turns text batches into vectors
//   - VectorIndex: stores and similarity-searches vectors
//   - QueryExpander: expands a question into sub-queries (optional;
//     retrieval falls back to the original query)
//   - Summarizer: generates the catalog summary for a source (optional;
//     the summarize stage degrades to a keyword-only entry)
//
// # Store ports
//
//   - SourceStore: source configuration persistence
//   - JobStore: ingestion job persistence
//   - FingerprintStore: content fingerprints, the dedup source of truth
//   - CatalogStore: per-source summaries and keyword sets
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
