/*
Package ports defines the driven ports (interfaces) of the issue workflow.

These interfaces decouple the workflow from external implementations, allowing
it to work with various repository hosts, model providers and storage backends.

# Key Interfaces

  - RepositoryAccess: browses a repository and publishes change requests.
  - IssueSource: lists and fetches tracked issues.
  - ModelClient: produces research turns, plans and file fixes.
  - SnapshotStore: persists the latest state of every workflow.
  - DistributedLocker: serializes access to a workflow across replicas.
*/
package ports
