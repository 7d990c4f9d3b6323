// Package driving defines interfaces that external actors (CLI, MCP
// clients, the file watcher) use to interact with core services. These
// are the "driving" ports in hexagonal architecture terminology - they
// drive the application.
//
// Together they form the memory store's query interface: appending and
// searching thoughts, curating long-term memories, indexing and
// searching documents, and the startup recovery pass.
//
// Implementations of these interfaces live in internal/core/services.
package driving
