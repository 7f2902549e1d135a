// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports).
//
// The core services depend on these interfaces, never on concrete
// adapters. External model calls (embedding, entity extraction,
// reranking, answer generation) are declared here as pure
// input/output contracts; their implementations live under
// internal/adapters/driven.
package driven
