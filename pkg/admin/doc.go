// Package admin is the operator surface of the queue: inspection and
// repair of messages by id, manual execution, and supervisor control.
//
// Service methods return a Result carrying an HTTP-style code instead of an
// error, so the CLI and the JSON API built by Handler report rejections the
// same way. Queue names are resolved against the topology: a queue that is
// not configured for the vhost is rejected with 404, an unknown callback
// with 400.
//
// Supervision carries the supervisor operations alone and needs no queue
// storage, only the status records behind a Controller.
package admin
