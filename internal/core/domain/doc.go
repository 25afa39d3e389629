// Package domain defines the core business entities for Quarry.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Source: A web origin that has been (or is being) ingested
//   - RawDocument: One fetched page, before chunking
//   - Chunk: A bounded, embeddable span of a document
//   - IngestionJob: The unit of ingestion work and its state machine
//   - Passage: A scored retrieval result
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
