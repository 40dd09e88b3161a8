// Package pipeline runs a batch of chat requests through a fixed stage
// topology: dispatch, optional verification, collection, and optional
// checkpointing.
//
// Stages communicate only through the queues, the completion counter and the
// accumulator owned by a single Run. Each of those primitives has its own
// lock and no operation holds two of them at once.
//
// # Retry Policy
//
// A failed dispatch or a rejected verification sends the original request
// back to the input queue. By default there is no limit, so a request that
// always fails keeps the batch running forever. Options.MaxAttempts caps the
// attempts per request; capped requests are abandoned and reported
// separately, and the batch completes with the remainder.
//
// # Termination
//
// The collector stops the batch once the completion counter and its own
// accumulated count both reach the number of requests that were not
// abandoned. It then writes the output once and cancels the other stages.
package pipeline
