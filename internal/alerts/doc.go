// Package alerts implements the threshold rule engine.
//
// A rule reads one named snapshot signal (see Signals) and compares it to a
// threshold. It fires on a crossing: the condition holds now and did not at
// the previous evaluation of the same (fixture, rule) pair. Under the
// recross policy the pair then stays active until the condition clears;
// under the cooldown policy it may fire again once the cooldown has elapsed.
//
// Raised alerts are appended to the store.Alerts ring and delivered through
// an optional Notifier on a background goroutine.
package alerts
