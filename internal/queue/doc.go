// Package queue orders documents waiting for batch synthesis. Explicitly
// requested documents go ahead of the ones picked up by a sweep, and the queue
// applies backpressure once it holds its maximum number of jobs.
package queue
