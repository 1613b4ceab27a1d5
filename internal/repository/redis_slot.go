package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisCommandSlot keeps the mailbox slot in one redis key so several relay
// instances share it. Set is SET..GET and poll is GETDEL, both atomic server-side.
type RedisCommandSlot struct {
	rdb *redis.Client
	key string
}

func NewRedisCommandSlot(rdb *redis.Client, key string) *RedisCommandSlot {
	if key == "" {
		key = "smsrelay:command"
	}
	return &RedisCommandSlot{rdb: rdb, key: key}
}

var _ CommandSlotRepository = (*RedisCommandSlot)(nil)

func (s *RedisCommandSlot) SwapCommand(ctx context.Context, next model.Command) (model.Command, error) {
	var (
		raw string
		err error
	)
	if next.IsEmpty() {
		raw, err = s.rdb.GetDel(ctx, s.key).Result()
	} else {
		var payload []byte
		payload, err = json.Marshal(next)
		if err != nil {
			return model.EmptyCommand(), fmt.Errorf("encode command: %w", err)
		}
		raw, err = s.rdb.SetArgs(ctx, s.key, payload, redis.SetArgs{Get: true}).Result()
	}

	if errors.Is(err, redis.Nil) {
		return model.EmptyCommand(), nil
	}
	if err != nil {
		return model.EmptyCommand(), err
	}

	var prev model.Command
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		return model.EmptyCommand(), fmt.Errorf("decode command: %w", err)
	}
	return prev, nil
}
