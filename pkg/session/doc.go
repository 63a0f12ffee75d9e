/*
Package session implements per-workflow serialization and persistence orchestration.

It guards every workflow key with a reference-counted local mutex and, when configured,
a distributed lock, so that one workflow is never advanced by two callers at once across
multiple replicas. Snapshots are read and written through a ports.SnapshotStore.
*/
package session
