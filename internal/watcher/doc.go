// Package watcher detects memory changes from two directions: a filesystem
// watcher over the workspace memory surface, and an optional MongoDB change
// stream over the chunk collection. Both coalesce bursts through a
// single-holder debounce timer and invoke a callback once per quiet window.
package watcher
