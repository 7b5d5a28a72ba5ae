// Package sqlext hosts the sleep functions inside SQLite.
//
// Open returns a DB whose every physical connection has sleep, sleep_for
// and sleep_until registered as non-deterministic scalar functions, so
// SQLite never folds or caches them.
//
// # Cancellation
//
// go-sqlite3 answers a cancelled context with sqlite3_interrupt, which a
// Go callback never sees. Each connection therefore carries its own
// cancellation signal. DB.Exec and DB.Query pin a connection, bind the
// statement's context to that signal for the duration of the statement,
// and unbind afterwards. The sleep functions poll the signal between
// quanta.
//
// # Errors
//
// go-sqlite3 flattens callback errors into text. The binding records the
// typed error raised inside the callback and DB returns that instead, so
// sleep.IsCancelled and sleep.IsInvalidArgument work on query errors.
// Arguments of the wrong storage class or unparseable text fail with
// *ArgumentError before any wait.
package sqlext
