package repository

import (
	"context"
	"sync"
	"time"

	"github.com/inneri/gateway/internal/gateway/model"
)

// MemoryAgentStore is an in-memory agent store with the same contract
// as AgentRepository. Used by tests and local development.
type MemoryAgentStore struct {
	mu            sync.Mutex
	agents        map[string]*model.Agent
	keys          map[string]*model.AgentKey
	reps          map[string]*model.Reputation
	verifications []*model.Verification
}

// NewMemoryAgentStore creates an empty MemoryAgentStore.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{
		agents: map[string]*model.Agent{},
		keys:   map[string]*model.AgentKey{},
		reps:   map[string]*model.Reputation{},
	}
}

func (m *MemoryAgentStore) Create(_ context.Context, agent *model.Agent, publicKeyPEM string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.AgentID]; ok {
		return ErrAgentIDTaken
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	m.agents[agent.AgentID] = agent
	m.keys[agent.AgentID] = &model.AgentKey{AgentID: agent.AgentID, PublicKeyPEM: publicKeyPEM, CreatedAt: now}
	m.reps[agent.AgentID] = &model.Reputation{AgentID: agent.AgentID, Score: model.InitialReputation, UpdatedAt: now}
	return nil
}

func (m *MemoryAgentStore) Get(_ context.Context, agentID string) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a, nil
}

func (m *MemoryAgentStore) GetKey(_ context.Context, agentID string) (*model.AgentKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[agentID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

func (m *MemoryAgentStore) GetReputation(_ context.Context, agentID string) (*model.Reputation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reps[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return r, nil
}

func (m *MemoryAgentStore) AdjustReputation(_ context.Context, agentID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reps[agentID]
	if !ok {
		return 0, ErrAgentNotFound
	}
	r.Score = model.ClampScore(r.Score + delta)
	r.UpdatedAt = time.Now().UTC()
	return r.Score, nil
}

func (m *MemoryAgentStore) InsertVerification(_ context.Context, v *model.Verification, agentLevel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[v.AgentID]
	if !ok {
		return ErrAgentNotFound
	}
	v.ID = int64(len(m.verifications) + 1)
	v.CreatedAt = time.Now().UTC()
	m.verifications = append(m.verifications, v)
	a.VerificationLevel = agentLevel
	return nil
}

// Count returns the number of stored agents.
func (m *MemoryAgentStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agents)
}

// Agent returns the stored agent record, or nil.
func (m *MemoryAgentStore) Agent(agentID string) *model.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agents[agentID]
}

// SetScore overwrites an agent's reputation score.
func (m *MemoryAgentStore) SetScore(agentID string, score int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reps[agentID]; ok {
		r.Score = score
	}
}

// Verifications returns the recorded verification events.
func (m *MemoryAgentStore) Verifications() []*model.Verification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Verification, len(m.verifications))
	copy(out, m.verifications)
	return out
}

// MemoryToolStore is an in-memory tool catalog store.
type MemoryToolStore struct {
	mu    sync.Mutex
	tools map[string]*model.Tool
}

// NewMemoryToolStore creates a MemoryToolStore holding the given tools.
func NewMemoryToolStore(ts ...*model.Tool) *MemoryToolStore {
	s := &MemoryToolStore{tools: map[string]*model.Tool{}}
	for _, t := range ts {
		s.tools[t.ToolID] = t
	}
	return s
}

// Put inserts or replaces a tool.
func (s *MemoryToolStore) Put(t *model.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.ToolID] = t
}

func (s *MemoryToolStore) Get(_ context.Context, toolID string) (*model.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools[toolID], nil
}

func (s *MemoryToolStore) ListEnabled(_ context.Context) ([]*model.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Tool
	for _, t := range s.tools {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}
