// Package supervisor runs queue workers according to a topology and keeps
// them running.
//
// A Supervisor loads the topology (vhost, queue, worker count, callback)
// from a Source, starts one goroutine per worker slot and then checks health
// on a fixed interval. Each check reloads the topology and, when its version
// changed, stops removed or surplus slots (highest index first) and starts
// new ones. Slots whose worker exited, whose status record vanished or whose
// process is gone are restarted. The check also sweeps expired claims.
//
// Only worker counts are diffed. A queue whose callback changes while its
// count stays the same keeps running the old callback until its workers are
// restarted for another reason; the supervisor logs a warning when it sees
// such a change.
//
// Control works from another process: it reads the singleton supervisor
// status record and signals the process to start, stop or restart it.
package supervisor
