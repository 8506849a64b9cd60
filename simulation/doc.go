// Package simulation drives a population of PatronAgents against a shared circulation.LendingService.
//
// Each agent runs on its own goroutine and cycles through a small state machine:
//
//	Idle --borrow Success--> HoldingBook --return Success--> Idle (turn completed)
//	Idle --maxTurns reached or stopped--> Finished
//	HoldingBook --stopped--> Finished
//
// Contention (Unavailable, NotFound, NotBorrowed) never blocks: the agent backs off for a randomized
// interval and retries. Every sleep also watches the agent's stop signal and the run context, so
// a Stop is observed within one interval.
//
// The Controller launches the agents and a monitor. The monitor waits for the completion signal
// of all agents or for the completion timeout, then stops every agent, waits for them with a
// bound, and assembles the Summary.
package simulation
