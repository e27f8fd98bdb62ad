package taskqueue

import "github.com/redis/go-redis/v9"

// dequeueScript atomically claims the oldest pending task and leases it in
// the started set with a visibility deadline, so a worker crash leaves the
// record recoverable.
//
// KEYS[1] pending list, KEYS[2] started zset. ARGV[1] visibility deadline (ms).
var dequeueScript = redis.NewScript(`
local raw = redis.call("RPOP", KEYS[1])
if raw then
  redis.call("ZADD", KEYS[2], ARGV[1], raw)
  return raw
end
return false
`)

// requeueDueScript moves members whose score has passed back onto the
// pending list. It serves both lease reclamation (started -> pending) and
// retry promotion (retried -> pending).
//
// KEYS[1] source zset, KEYS[2] pending list. ARGV[1] now (ms), ARGV[2] batch.
var requeueDueScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, raw in ipairs(due) do
  redis.call("ZREM", KEYS[1], raw)
  redis.call("LPUSH", KEYS[2], raw)
end
return #due
`)

// sweepExpiredScript drops terminal records whose retention has elapsed.
//
// KEYS[1] succeeded zset, KEYS[2] failed zset. ARGV[1] now (ms).
var sweepExpiredScript = redis.NewScript(`
local n = redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local m = redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
return n + m
`)
