package redisstore

import "github.com/redis/go-redis/v9"

// Scripts that address a message by id read the queue base from the hash and
// derive the index keys. Those keys carry the same {vhost} hash tag.
const prelude = `
local function rank(sync, created)
	local s = math.min(tonumber(sync), 700)
	return string.format('%.0f', s * 1e13 + tonumber(created))
end

local function unindex(base, id)
	redis.call('ZREM', base .. ':delayed', id)
	redis.call('ZREM', base .. ':ready', id)
	redis.call('ZREM', base .. ':claimed', id)
end

local function place(base, id, sync, created, visible, now)
	if tonumber(visible) <= tonumber(now) then
		redis.call('ZADD', base .. ':ready', rank(sync, created), id)
	else
		redis.call('ZADD', base .. ':delayed', visible, id)
	end
end
`

// KEYS: message, registry. ARGV: id, vhost, group, queue, key, payload, now, visible, base.
var enqueueScript = redis.NewScript(prelude + `
local created = redis.call('HGET', KEYS[1], 'created')
if not created then
	created = ARGV[7]
end
local old = redis.call('HGET', KEYS[1], 'base')
if old then
	unindex(old, ARGV[1])
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'vhost', ARGV[2], 'group', ARGV[3], 'queue', ARGV[4], 'key', ARGV[5],
	'payload', ARGV[6], 'sync', '0', 'visible', ARGV[8], 'lease', '', 'claimed', '',
	'enqueued', ARGV[7], 'created', created, 'updated', ARGV[7], 'base', ARGV[9])
unindex(ARGV[9], ARGV[1])
place(ARGV[9], ARGV[1], 0, created, ARGV[8], ARGV[7])
redis.call('SADD', KEYS[2], ARGV[9])
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: delayed, ready, claimed. ARGV: now, lease, cutoff, message prefix.
var claimScript = redis.NewScript(prelude + `
local now = tonumber(ARGV[1])

local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[1], id)
	local f = redis.call('HMGET', ARGV[4] .. id, 'sync', 'created')
	if f[1] then
		redis.call('ZADD', KEYS[2], rank(f[1], f[2]), id)
	end
end

local best, bestScore
local top = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
if #top > 0 then
	best = top[1]
	bestScore = tonumber(top[2])
end

local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', '(' .. ARGV[3])
for _, id in ipairs(expired) do
	local f = redis.call('HMGET', ARGV[4] .. id, 'sync', 'created', 'visible')
	if f[1] and tonumber(f[3]) <= now then
		local score = tonumber(rank(f[1], f[2]))
		if best == nil or score < bestScore or (score == bestScore and id < best) then
			best = id
			bestScore = score
		end
	end
end

if best == nil then
	return false
end

local key = ARGV[4] .. best
redis.call('ZREM', KEYS[2], best)
redis.call('HSET', key, 'lease', ARGV[2], 'claimed', ARGV[1], 'updated', ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[1], best)
return redis.call('HGETALL', key)
`)

// KEYS: message. ARGV: id, lease.
var ackScript = redis.NewScript(prelude + `
local f = redis.call('HMGET', KEYS[1], 'lease', 'base')
if not f[1] or f[1] == '' or f[1] ~= ARGV[2] then
	return 0
end
unindex(f[2], ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`)

// KEYS: message. ARGV: id, lease, now, visible.
var nackScript = redis.NewScript(prelude + `
local f = redis.call('HMGET', KEYS[1], 'lease', 'base', 'sync', 'created')
if not f[1] or f[1] == '' or f[1] ~= ARGV[2] then
	return 0
end
local sync = tonumber(f[3]) + 1
redis.call('HSET', KEYS[1], 'sync', sync, 'lease', '', 'claimed', '', 'visible', ARGV[4], 'updated', ARGV[3])
unindex(f[2], ARGV[1])
place(f[2], ARGV[1], sync, f[4], ARGV[4], ARGV[3])
return 1
`)

// KEYS: message. ARGV: id.
var deleteScript = redis.NewScript(prelude + `
local base = redis.call('HGET', KEYS[1], 'base')
if not base then
	return 0
end
unindex(base, ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`)

// KEYS: message. ARGV: id, now.
var resetScript = redis.NewScript(prelude + `
local f = redis.call('HMGET', KEYS[1], 'base', 'created')
if not f[1] then
	return false
end
redis.call('HSET', KEYS[1], 'sync', '0', 'lease', '', 'claimed', '', 'visible', ARGV[2], 'updated', ARGV[2])
unindex(f[1], ARGV[1])
place(f[1], ARGV[1], 0, f[2], ARGV[2], ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: message. ARGV: id, now, lease, cutoff.
// Returns 0 when missing, 1 when a valid claim exists.
var lockScript = redis.NewScript(prelude + `
local f = redis.call('HMGET', KEYS[1], 'base', 'lease', 'claimed')
if not f[1] then
	return 0
end
if f[2] ~= '' and f[3] ~= '' and tonumber(f[3]) >= tonumber(ARGV[4]) then
	return 1
end
redis.call('HSET', KEYS[1], 'lease', ARGV[3], 'claimed', ARGV[2], 'updated', ARGV[2])
unindex(f[1], ARGV[1])
redis.call('ZADD', f[1] .. ':claimed', ARGV[2], ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: message. ARGV: id, now, lease.
// Returns 0 when missing, 1 when the lease does not match.
var unlockScript = redis.NewScript(prelude + `
local f = redis.call('HMGET', KEYS[1], 'base', 'lease', 'sync', 'created')
if not f[1] then
	return 0
end
if ARGV[3] ~= '' and f[2] ~= ARGV[3] then
	return 1
end
redis.call('HSET', KEYS[1], 'lease', '', 'claimed', '', 'visible', ARGV[2], 'updated', ARGV[2])
unindex(f[1], ARGV[1])
place(f[1], ARGV[1], f[3], f[4], ARGV[2], ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: claimed. ARGV: now, cutoff, message prefix, base.
var releaseScript = redis.NewScript(prelude + `
local base = ARGV[4]
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2])
local released = 0
for _, id in ipairs(expired) do
	local key = ARGV[3] .. id
	redis.call('ZREM', KEYS[1], id)
	local f = redis.call('HMGET', key, 'sync', 'created', 'visible')
	if f[1] then
		redis.call('HSET', key, 'lease', '', 'claimed', '', 'updated', ARGV[1])
		place(base, id, f[1], f[2], f[3], ARGV[1])
		released = released + 1
	end
end
return released
`)

// KEYS: delayed, ready, claimed, registry. ARGV: message prefix, base.
var clearScript = redis.NewScript(`
local removed = 0
for i = 1, 3 do
	local ids = redis.call('ZRANGE', KEYS[i], 0, -1)
	for _, id in ipairs(ids) do
		removed = removed + redis.call('DEL', ARGV[1] .. id)
	end
	redis.call('DEL', KEYS[i])
end
redis.call('SREM', KEYS[4], ARGV[2])
return removed
`)
