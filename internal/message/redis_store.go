package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every Redis round trip; slow storage must not wedge a
// connection's event loop.
const opTimeout = 2 * time.Second

// convKey returns the Redis key for the ordered message list of a
// conversation. The pair is sorted so both directions share one key.
func convKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return "conv:" + userA + ":" + userB + ":messages"
}

// unreadKey returns the Redis key counting unread messages from sender to
// receiver. Direction matters here, so the pair is not sorted.
func unreadKey(senderID, receiverID string) string {
	return "unread:" + senderID + ":" + receiverID
}

// RedisStore persists messages in Redis: one list per conversation plus a
// per-direction unread counter.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore on top of an existing client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Create appends the message to the conversation list and bumps the
// receiver's unread counter in one pipeline.
func (s *RedisStore) Create(ctx context.Context, senderID, receiverID, content string) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	msg := &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, convKey(senderID, receiverID), data)
	pipe.Incr(ctx, unreadKey(senderID, receiverID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// markAllReadScript flips every unread message from ARGV[1] to ARGV[2] in
// place with LSET and resets the unread counter, all in one atomic script so
// a Create running concurrently can only append past the scanned range and
// is never lost. Entries that fail to decode are left untouched.
var markAllReadScript = redis.NewScript(`
local flipped = 0
local len = redis.call('LLEN', KEYS[1])
for i = 0, len - 1 do
	local ok, m = pcall(cjson.decode, redis.call('LINDEX', KEYS[1], i))
	if ok and m['sender_id'] == ARGV[1] and m['receiver_id'] == ARGV[2] and m['read'] == false then
		m['read'] = true
		redis.call('LSET', KEYS[1], i, cjson.encode(m))
		flipped = flipped + 1
	end
end
redis.call('SET', KEYS[2], 0)
return flipped
`)

// MarkAllRead flips unread messages from senderID to receiverID and resets
// the unread counter in one atomic server-side operation.
func (s *RedisStore) MarkAllRead(ctx context.Context, senderID, receiverID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := markAllReadScript.Run(ctx, s.client,
		[]string{convKey(senderID, receiverID), unreadKey(senderID, receiverID)},
		senderID, receiverID).Int()
	if err != nil {
		return 0, fmt.Errorf("flip read flags: %w", err)
	}
	return n, nil
}

// History returns the conversation between two users in creation order.
func (s *RedisStore) History(ctx context.Context, userA, userB string) ([]*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vals, err := s.client.LRange(ctx, convKey(userA, userB), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	msgs := make([]*Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// UnreadCount reads the unread counter for the given direction.
func (s *RedisStore) UnreadCount(ctx context.Context, senderID, receiverID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.client.Get(ctx, unreadKey(senderID, receiverID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read unread counter: %w", err)
	}
	return n, nil
}
