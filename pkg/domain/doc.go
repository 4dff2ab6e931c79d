/*
Package domain contains the core domain models for the Graft runtime.

It defines the fundamental entities of intent execution — Intents,
Executions, Artifacts, Materializations and Boundary Contracts — together
with the invariants that data must honor (forward-only artifact lifecycle,
terminal contract states). This package is kept pure and free of external
dependencies so that adapters and orchestration can depend on it without
dragging infrastructure along.
*/
package domain
