/*
Package domain contains the core models of the issue resolution workflow.

It defines the state threaded through a run, the closed set of steps the workflow
graph is made of, and the changed-fields record nodes return. This package is kept
pure and free of I/O so that every adapter (stores, transports, model clients) can
share it.

# Key Entities

  - WorkflowState: the snapshot of one workflow run (status, issue, research, plan, patches).
  - Step: identifier of a node in the workflow graph.
  - Update: the fields a node changed; merged into state with Apply.
  - WorkflowKey: the (owner, repository, issue) identity a workflow is stored under.
  - StateDiff: the delta between two snapshots, streamed to dashboards.
*/
package domain
