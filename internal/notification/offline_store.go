package notification

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OfflineStore 离线通知存储：用户不在线时暂存，重连时重放。
// 只对按用户寻址的通知生效，角色广播不暂存。
type OfflineStore interface {
	Append(ctx context.Context, userID string, payload []byte) error
	Drain(ctx context.Context, userID string) ([][]byte, error)
}

// MemoryOfflineStore 进程内离线存储（单实例部署/测试用）
type MemoryOfflineStore struct {
	mu       sync.Mutex
	messages map[string][][]byte
	limit    int
}

// NewMemoryOfflineStore 创建内存离线存储，limit 为每用户暂存上限
func NewMemoryOfflineStore(limit int) *MemoryOfflineStore {
	if limit <= 0 {
		limit = 50
	}
	return &MemoryOfflineStore{
		messages: make(map[string][][]byte),
		limit:    limit,
	}
}

// Append 暂存一条消息，超限丢弃最旧的
func (s *MemoryOfflineStore) Append(ctx context.Context, userID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := append(s.messages[userID], payload)
	if len(queue) > s.limit {
		queue = queue[len(queue)-s.limit:]
	}
	s.messages[userID] = queue
	return nil
}

// Drain 取出并清空用户的暂存消息
func (s *MemoryOfflineStore) Drain(ctx context.Context, userID string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.messages[userID]
	delete(s.messages, userID)
	return queue, nil
}

// RedisOfflineStore 基于 Redis LIST 的离线存储，多实例部署共享
type RedisOfflineStore struct {
	rdb   *redis.Client
	limit int64
	ttl   time.Duration
}

// NewRedisOfflineStore 创建 Redis 离线存储
func NewRedisOfflineStore(rdb *redis.Client, limit int64, ttl time.Duration) *RedisOfflineStore {
	if limit <= 0 {
		limit = 50
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisOfflineStore{rdb: rdb, limit: limit, ttl: ttl}
}

func (s *RedisOfflineStore) key(userID string) string {
	return "notify:offline:" + userID
}

// Append 推入队尾并裁剪到上限
func (s *RedisOfflineStore) Append(ctx context.Context, userID string, payload []byte) error {
	key := s.key(userID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -s.limit, -1)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Drain 取出全部消息并删除键
func (s *RedisOfflineStore) Drain(ctx context.Context, userID string) ([][]byte, error) {
	key := s.key(userID)
	values, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return nil, err
		}
	}
	messages := make([][]byte, 0, len(values))
	for _, v := range values {
		messages = append(messages, []byte(v))
	}
	return messages, nil
}
