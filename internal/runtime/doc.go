// Package runtime executes compiled workflow graphs.
//
// The engine knows nothing about issues or repositories: it selects a step,
// runs its body, merges the returned Update and decides the successor, emitting
// every intermediate snapshot. Failures are classified into quota pauses,
// which a later Run resumes from the paused step, and terminal failures.
package runtime
