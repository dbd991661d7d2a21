package session

import (
	"context"
	"sync"

	"davinci-agent/internal/model"
)

// MemoryStore 进程内存储，用于测试和本地运行；重启即丢失
type MemoryStore struct {
	locks *keyedMutex

	mu         sync.RWMutex
	states     map[string]State
	transcript map[string][]model.TranscriptMessage
	tokens     map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:      newKeyedMutex(),
		states:     make(map[string]State),
		transcript: make(map[string][]model.TranscriptMessage),
		tokens:     make(map[string][]byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (State, error) {
	m.mu.RLock()
	st, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		st = State{PendingData: map[string]string{}}
	}
	st = st.Clone()
	st.Locked = m.locks.held(id)
	return st, nil
}

func (m *MemoryStore) Put(_ context.Context, id string, st State) error {
	st = st.Clone()
	st.Locked = false
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.Idle() && len(st.PendingData) == 0 {
		delete(m.states, id)
		return nil
	}
	m.states[id] = st
	return nil
}

func (m *MemoryStore) Lock(ctx context.Context, id string) (func(), error) {
	return m.locks.lock(ctx, id)
}

func (m *MemoryStore) Append(_ context.Context, id string, msg model.TranscriptMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcript[id] = append(m.transcript[id], msg)
	return nil
}

func (m *MemoryStore) Messages(_ context.Context, id string) ([]model.TranscriptMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.TranscriptMessage{}, m.transcript[id]...), nil
}

func (m *MemoryStore) SaveToken(_ context.Context, id, provider string, token []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id+"/"+provider] = append([]byte(nil), token...)
	return nil
}

func (m *MemoryStore) LoadToken(_ context.Context, id, provider string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[id+"/"+provider]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), tok...), nil
}
