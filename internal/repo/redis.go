package repo

import (
	"context"

	"holdem-service/internal/config"

	"github.com/redis/go-redis/v9"
)

func InitRedis(ctx context.Context, conf config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return rdb, nil
}
