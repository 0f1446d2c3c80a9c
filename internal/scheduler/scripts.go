package scheduler

import "github.com/redis/go-redis/v9"

// Every script receives the full key set in this order:
//   1 tasks     HASH id -> task JSON
//   2 ready     ZSET id scored by visible-at (unix ms)
//   3 inflight  ZSET id scored by claim deadline (unix ms)
//   4 claims    HASH id -> claim token
//   5 attempts  HASH id -> failed attempt count
//   6 errors    HASH id -> last error
//   7 dead      ZSET id scored by dead-letter time (unix ms)
//   8 reasons   HASH id -> dead-letter reason

// scheduleScript returns the stored task JSON when the id exists, or an empty
// string after creating it.
var scheduleScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return redis.call('HGET', KEYS[1], ARGV[1])
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return ''
`)

// claimScript moves the first visible id to inflight under a new token.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[2], id)
local task = redis.call('HGET', KEYS[1], id)
if not task then
  return {id, '', '0'}
end
redis.call('ZADD', KEYS[3], ARGV[2], id)
redis.call('HSET', KEYS[4], id, ARGV[3])
local attempts = redis.call('HGET', KEYS[5], id) or '0'
return {id, task, attempts}
`)

var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
redis.call('HDEL', KEYS[6], ARGV[1])
return 1
`)

// failScript records a failed attempt. It returns {code, attempts} where code
// is -1 for a lost claim, 1 for requeued and 2 for dead-lettered.
var failScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[2] then
  return {-1, 0}
end
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
local attempts = redis.call('HINCRBY', KEYS[5], ARGV[1], 1)
redis.call('HSET', KEYS[6], ARGV[1], ARGV[5])
if ARGV[7] == '1' or attempts >= tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[7], ARGV[6], ARGV[1])
  redis.call('HSET', KEYS[8], ARGV[1], ARGV[8])
  return {2, attempts}
end
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return {1, attempts}
`)

// reclaimScript treats expired claims as failed attempts and makes them
// visible again. It returns {reclaimed, dead}.
var reclaimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local dead = 0
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[3], id)
  redis.call('HDEL', KEYS[4], id)
  local attempts = redis.call('HINCRBY', KEYS[5], id, 1)
  redis.call('HSET', KEYS[6], id, ARGV[4])
  if attempts >= tonumber(ARGV[2]) then
    redis.call('ZADD', KEYS[7], ARGV[1], id)
    redis.call('HSET', KEYS[8], id, ARGV[5])
    dead = dead + 1
  else
    redis.call('ZADD', KEYS[2], ARGV[1], id)
  end
end
return {#ids, dead}
`)

var requeueScript = redis.NewScript(`
if redis.call('ZREM', KEYS[7], ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[8], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)
