// Package ports defines the interfaces the protocol code depends on.
// Guest heaps and engine memories implement them, so the descriptor logic
// can run against wazero at runtime and against plain byte slices in tests.
package ports
