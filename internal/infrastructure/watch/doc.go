// Package watch turns policy file edits into property change signals.
package watch
