// Package status implements the status channel: one small persisted record per
// running process (the supervisor singleton and every worker slot) carrying
// its PID and the busy / stopping / force flags.
//
// A worker owns its record while alive and deletes it on clean exit. The
// supervisor reads records to judge health and amends them only to request a
// stop. The CLI, running in another process, uses the same records to report
// status and to signal the live supervisor.
//
// Two stores are provided: FileStore keeps one JSON file per record in a run
// directory and is what the binary uses, MemoryStore serves tests and
// single-process embedding.
package status
