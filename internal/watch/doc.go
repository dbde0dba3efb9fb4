// Package watch rebuilds a website whenever its sources change.
//
// A Service combines a recursive fsnotify watcher, a debouncer that
// coalesces bursts of file events, an optional gocron interval job and an
// optional Prometheus endpoint. Builds never overlap: a request that arrives
// while a build is running queues exactly one follow-up build.
package watch
