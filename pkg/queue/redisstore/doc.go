// Package redisstore implements queue.Storage on Redis.
//
// Each message is a hash. Each (group, queue) pair owns three sorted sets:
// delayed (scored by visibility time), ready (scored by retry level, then
// creation time) and claimed (scored by claim time). State transitions run
// as Lua scripts so that a claim is atomic even with many consumers on
// different hosts. All keys of a vhost share one hash slot.
package redisstore
