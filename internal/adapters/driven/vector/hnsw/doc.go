// Package hnsw provides the vector index adapter.
// It implements the driven.VectorIndex interface on top of
// github.com/coder/hnsw, a pure Go HNSW graph, so no CGO toolchain is needed.
//
// Each Index owns one serialized file. The file starts with a fixed header
// (magic, format version, dimension, slot bookkeeping) followed by the
// exported graph, so a reader can reject files written for another
// dimension or format before touching the graph.
//
// Deletion is logical: removed slots are tombstoned, filtered from search
// results and physically dropped only by Rebuild.
package hnsw
