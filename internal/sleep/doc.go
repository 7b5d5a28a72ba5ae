// Package sleep implements the cancellable delay primitive behind the
// sleep, sleep_for and sleep_until SQL functions.
//
// The package has two layers:
//
//   - Normalizer: pure functions (NormalizeSeconds, IntervalSeconds,
//     SecondsUntil) that turn each input shape into canonical seconds,
//     finite and within [0, MaxSleepSeconds].
//   - Waiter: Sleeper.Wait blocks for canonical seconds in slices of at most
//     CheckInterval, polling a Signal between slices.
//
// The row-batch adapter (Sleeper.Sleep, Sleeper.SleepFor, Sleeper.SleepUntil)
// feeds columns of input values through both layers. Null rows produce null
// output without waiting. The first error aborts the batch.
//
// # Cancellation
//
// Cancellation is cooperative. A Signal is only read, never written, and is
// observed at quantum boundaries, so latency is bounded by CheckInterval.
// Waits run on the calling goroutine; the package spawns none.
package sleep
