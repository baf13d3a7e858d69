// Package scheduler drives scans on a timer and on manual trigger with a
// single-flight guard: idle -> scanning -> idle, plus paused after a fatal
// upstream error.
package scheduler
