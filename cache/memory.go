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
	"sync"
	"time"

	ourGithub "github.com/sonatype-nexus-community/clam/github"
)

type memoryEntry struct {
	exempt    bool
	expiresAt time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	maxKeys int
	data    map[string]memoryEntry
}

var _ ourGithub.ExemptionCache = (*MemoryCache)(nil)

type MemoryCacheConfig struct {
	TTL     time.Duration
	Now     func() time.Time
	MaxKeys int
}

func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryCache{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		maxKeys: cfg.MaxKeys,
		data:    make(map[string]memoryEntry),
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return false, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.data, key)
		return false, false, nil
	}
	return entry.exempt, true, nil
}

// Set drops expired entries when the cache is full, and skips the write when that does not
// free any room.
func (m *MemoryCache) Set(_ context.Context, key string, exempt bool) error {
	if m.ttl <= 0 {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok && len(m.data) >= m.maxKeys {
		m.gc(now)
		if len(m.data) >= m.maxKeys {
			return nil
		}
	}
	m.data[key] = memoryEntry{exempt: exempt, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *MemoryCache) gc(now time.Time) {
	for key, entry := range m.data {
		if !now.Before(entry.expiresAt) {
			delete(m.data, key)
		}
	}
}
