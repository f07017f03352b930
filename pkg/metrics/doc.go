// Package metrics computes reliability and risk indices for a feeder from a
// sequence of solved power-flow snapshots.
//
// # Observers
//
// Each metric family is an [Observer] registered on a per-run [Subject]. The
// run loop wraps every solved timestep in a [Step] and calls
// [Subject.Notify]; after the last step it calls [Subject.Finalize]. Results
// are exposed through accessors that return a NOT_FINALIZED error until
// then.
//
// Producers run first. The node, line, and transformer observers compute a
// violation depth (gamma) for each asset and publish the customers
// downstream of every violating asset on the step. The customer and system
// observers registered after them read those sets. [Suite] builds the
// observers in that order.
//
// # Normalization
//
// Asset indices (NVRI, LLRI, TLRI) accumulate, per step,
//
//	downstream/total * gamma * step minutes * 100 / total steps
//
// so a value is the customer-weighted violation depth integrated over the
// run and averaged over its length. SARDI values are mean percentages of
// customers impacted per step.
//
// # Time series
//
// On recording steps every accumulating metric appends its growth since the
// previous recording step. Efficiencies append the efficiency of the window
// instead, and CRI appends the worst depth of the window.
package metrics
