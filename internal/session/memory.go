package session

import (
	"sync"
	"time"
)

// MemoryStorage はプロセス内メモリに保存する Storage です。
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStorage は空の MemoryStorage を作成します。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetItems(items map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		m.items[k] = v
	}
	return nil
}

func (m *MemoryStorage) RemoveItems(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// MemoryPool はクライアントIDごとの保存領域をまとめて持ちます。
// 領域は最初の書き込みで作られ、ttl の間書き込みが無いか空になると捨てられます。
// 読み取りだけでは領域を作らないので、匿名アクセスが増えてもメモリは増えません。
type MemoryPool struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	clients map[string]*poolEntry
}

type poolEntry struct {
	items     map[string]string
	expiresAt time.Time
}

// NewMemoryPool は MemoryPool を作成します。ttl が 0 以下なら期限切れにしません。
func NewMemoryPool(ttl time.Duration) *MemoryPool {
	return &MemoryPool{ttl: ttl, now: time.Now, clients: make(map[string]*poolEntry)}
}

// Get は clientID 用の Storage を返します。
func (p *MemoryPool) Get(clientID string) Storage {
	return poolStorage{pool: p, clientID: clientID}
}

// Len は保持しているクライアント数を返します（期限切れは数えません）。
func (p *MemoryPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return len(p.clients)
}

// entryLocked は有効な領域を返します。期限切れならその場で捨てます。
func (p *MemoryPool) entryLocked(clientID string) (*poolEntry, bool) {
	e, ok := p.clients[clientID]
	if !ok {
		return nil, false
	}
	if p.expiredLocked(e) {
		delete(p.clients, clientID)
		return nil, false
	}
	return e, true
}

func (p *MemoryPool) expiredLocked(e *poolEntry) bool {
	return !e.expiresAt.IsZero() && !p.now().Before(e.expiresAt)
}

func (p *MemoryPool) sweepLocked() {
	for id, e := range p.clients {
		if p.expiredLocked(e) {
			delete(p.clients, id)
		}
	}
}

// poolStorage は MemoryPool の1クライアント分を Storage として見せます。
type poolStorage struct {
	pool     *MemoryPool
	clientID string
}

func (s poolStorage) GetItem(key string) (string, bool, error) {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	e, ok := s.pool.entryLocked(s.clientID)
	if !ok {
		return "", false, nil
	}
	v, ok := e.items[key]
	return v, ok, nil
}

// SetItems は Redis の EXPIRE と同じく、書き込みのたびに期限を延ばします。
func (s poolStorage) SetItems(items map[string]string) error {
	p := s.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	e, ok := p.entryLocked(s.clientID)
	if !ok {
		e = &poolEntry{items: make(map[string]string, len(items))}
		p.clients[s.clientID] = e
	}
	for k, v := range items {
		e.items[k] = v
	}
	if p.ttl > 0 {
		e.expiresAt = p.now().Add(p.ttl)
	}
	return nil
}

func (s poolStorage) RemoveItems(keys ...string) error {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	e, ok := s.pool.entryLocked(s.clientID)
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(e.items, k)
	}
	if len(e.items) == 0 {
		delete(s.pool.clients, s.clientID)
	}
	return nil
}
