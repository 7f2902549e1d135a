// Package driving provides interfaces for the application's entry
// points (primary/inbound ports). The CLI, HTTP API and MCP adapters
// call the core exclusively through these interfaces.
package driving
