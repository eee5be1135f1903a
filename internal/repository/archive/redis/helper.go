package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	omitnilpointers "github.com/sharetube/syncroom/pkg/omit-nil-pointers"
)

// hSetStruct writes the redis-tagged fields of value to key, skipping nil pointers.
func (r repo) hSetStruct(ctx context.Context, c redis.Pipeliner, key string, value any) {
	c.HSet(ctx, key, omitnilpointers.StructFields(value, "redis"))
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

func (r repo) fieldToInt(field string) int {
	i, _ := strconv.Atoi(field)
	return i
}

func (r repo) fieldToInt64(field string) int64 {
	i, _ := strconv.ParseInt(field, 10, 64)
	return i
}
