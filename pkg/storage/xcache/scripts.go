package xcache

import "github.com/redis/go-redis/v9"

// KEYS[1]=key ARGV[1]=token
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KEYS[1]=key ARGV[1]=token ARGV[2]=ttl 毫秒
var compareAndExpireScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// KEYS[1]=hash KEYS[2]=lock KEYS[3]=dirty ARGV[1]=field ARGV[2]=delta
// 返回 {status, value}，value 仅在 status=1 时有意义。
var incrementUnlessLockedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	redis.call("SET", KEYS[3], "1")
	return {-1, 0}
end
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	redis.call("SET", KEYS[3], "1")
	return {0, 0}
end
return {1, redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])}
`)
