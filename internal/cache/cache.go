package cache

import (
	"sync"
	"time"
)

// TTLCache 进程内 TTL 缓存
//
// 构造后注入到使用方，不做全局实例。时钟可注入，
// 测试中拨动假时钟即可验证过期行为。
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// NewTTL 创建缓存，ttl 为默认存活时长
func NewTTL(ttl time.Duration) *TTLCache {
	return NewTTLWithClock(ttl, time.Now)
}

// NewTTLWithClock 创建可注入时钟的缓存
func NewTTLWithClock(ttl time.Duration, now func() time.Time) *TTLCache {
	return &TTLCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

// Get 读取未过期的缓存值，过期条目顺手删除
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set 按默认 TTL 写入
func (c *TTLCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL 按指定 TTL 写入
func (c *TTLCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Delete 删除缓存条目
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetOrLoad 读穿缓存：未命中时调用 loader 并回填
//
// loader 失败不回填，错误原样返回给调用方。
func (c *TTLCache) GetOrLoad(key string, loader func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := loader()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}
