// Package async provides goroutine helpers with panic recovery, timeouts and
// structured logging.
//
// SafeGo runs a single fire-and-forget task. WorkerPool runs submitted tasks
// on a fixed number of workers and drains on Shutdown. Batch fans a slice out
// over a temporary pool and returns the collected errors.
//
// Failures are logged with the observability.Logger carried by the context.
package async
