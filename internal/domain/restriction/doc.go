/*
Package restriction decides the background restriction level of every
(uid, package) pair.

# Overview

Signals arrive from several producers: process lifecycle, standby bucket
changes, the user-set background restriction flag, package and user
broadcasts, property changes. Producers never touch state. Each signal becomes
a typed Event submitted to a single Lane, and the Controller applies events one
at a time against the Store.

	Producers -> Lane (FIFO) -> Controller.handle -> Evaluator -> Store
	                                                   |            |
	                                          Gate (deferred)   Dispatcher

# Levels

The evaluator merges hibernation, the standby bucket, the background
restriction flag and tracker proposals. Trackers aggregate with max, packages
in a uid aggregate with min. The consent-gated BackgroundRestricted level is
never entered from tracker opinion alone: the evaluator requests escalation
and settles on RestrictedBucket.

# Deferral

Restricting an app while one of its keys is foreground-active is deferred.
The Gate holds at most one action per key and runs the uid's actions once
the uid goes idle.

# Faults

A handler that fails or panics is logged with its event, counted, and
dropped. The lane keeps draining.
*/
package restriction
