package livia

import (
	"sync"
	"sync/atomic"
)

// ThreadState holds the per-thread engine state that survives between
// requests: the cumulative token count of every assistant response in the
// thread, and the handle of the ephemeral vector index holding documents
// uploaded in the thread. Both live for the process lifetime; the vector
// index itself is evicted provider-side one day after last use.
type ThreadState struct {
	tokens atomic.Int64

	mu            sync.Mutex
	vectorStoreID string
}

// AddTokens adds a response's token total to the thread counter and returns
// the new cumulative value. Counters are monotonic within a process.
func (s *ThreadState) AddTokens(n int) int64 {
	if n < 0 {
		n = 0
	}
	return s.tokens.Add(int64(n))
}

// Tokens returns the cumulative token count for the thread.
func (s *ThreadState) Tokens() int64 { return s.tokens.Load() }

// SetVectorStore records the thread's vector index handle.
func (s *ThreadState) SetVectorStore(id string) {
	s.mu.Lock()
	s.vectorStoreID = id
	s.mu.Unlock()
}

// VectorStore returns the thread's vector index handle, or "".
func (s *ThreadState) VectorStore() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vectorStoreID
}

// ThreadRegistry is the process-wide map of thread states, keyed by
// (channel, thread) or (channel) for top-level DMs. States are created
// lazily on first access and never removed.
type ThreadRegistry struct {
	mu      sync.RWMutex
	threads map[string]*ThreadState
}

// NewThreadRegistry creates an empty registry.
func NewThreadRegistry() *ThreadRegistry {
	return &ThreadRegistry{threads: make(map[string]*ThreadState)}
}

// Get returns the state for key, creating it if absent.
func (r *ThreadRegistry) Get(key string) *ThreadState {
	r.mu.RLock()
	s, ok := r.threads[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.threads[key]; ok {
		return s
	}
	s = &ThreadState{}
	r.threads[key] = s
	return s
}

// Len returns the number of tracked threads.
func (r *ThreadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}
