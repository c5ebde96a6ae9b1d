// Copyright 2026 Blink Labs Software
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

package ratify

import (
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedView struct {
	fetchedAt time.Time
	view      *campaign.View
}

// viewCache holds recently reconciled views for read paths. Action paths
// always reconcile fresh and never consult it.
type viewCache struct {
	cache *lru.Cache[string, cachedView]
	ttl   time.Duration
}

func newViewCache(size int, ttl time.Duration) (*viewCache, error) {
	if ttl <= 0 {
		return &viewCache{}, nil
	}
	cache, err := lru.New[string, cachedView](size)
	if err != nil {
		return nil, err
	}
	return &viewCache{cache: cache, ttl: ttl}, nil
}

func (c *viewCache) Get(address string) (*campaign.View, bool) {
	if c.cache == nil {
		return nil, false
	}
	entry, ok := c.cache.Get(address)
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		c.cache.Remove(address)
		return nil, false
	}
	return entry.view, true
}

func (c *viewCache) Add(address string, view *campaign.View) {
	if c.cache == nil {
		return
	}
	c.cache.Add(address, cachedView{fetchedAt: time.Now(), view: view})
}

func (c *viewCache) Remove(address string) {
	if c.cache == nil {
		return
	}
	c.cache.Remove(address)
}
