//
// Copyright 2021-present Sonatype Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	ourGithub "github.com/sonatype-nexus-community/clam/github"
)

const (
	valueExempt    = "1"
	valueNotExempt = "0"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ourGithub.ExemptionCache = (*RedisCache)(nil)

func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (bool, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == valueExempt, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, exempt bool) error {
	if r.ttl <= 0 {
		return nil
	}
	value := valueNotExempt
	if exempt {
		value = valueExempt
	}
	return r.client.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
