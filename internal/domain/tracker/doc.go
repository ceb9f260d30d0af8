/*
Package tracker defines the contract for pluggable restriction signal
producers and the registry that aggregates them.

A tracker watches one abuse dimension and proposes a level for a
(uid, package). The registry combines proposals with max: one dimension
firing is reason enough. The restriction controller calls every hook from its
lane, in registration order.

PolicyTracker is the built-in tracker. It reads YAML or TOML rule files
matched by a doublestar glob and reloads them when the bg_policy property
changes:

	rules:
	  - package: "com.example.*"
	    level: restricted_bucket
	    users: [0]
*/
package tracker
