package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/model"
)

// MemoryStore is an in-process Store. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	channels      map[string]*model.Channel
	conversations map[string]*memoryConversation
	seq           uint64
}

type memoryConversation struct {
	conv *model.Conversation
	seq  uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels:      make(map[string]*model.Channel),
		conversations: make(map[string]*memoryConversation),
	}
}

// FilterChannels returns channels matching f, oldest first.
func (s *MemoryStore) FilterChannels(ctx context.Context, f ChannelFilter) ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Channel
	for _, ch := range s.channels {
		if f.TenantID != "" && ch.TenantID != f.TenantID {
			continue
		}
		if f.AgentID != "" && ch.AgentID != f.AgentID {
			continue
		}
		if f.Type != "" && ch.Type != f.Type {
			continue
		}
		out = append(out, copyChannel(ch))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetChannel returns a channel by ID.
func (s *MemoryStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyChannel(ch)
	return &out, nil
}

// CreateChannel stores ch, assigning its ID and timestamps.
func (s *MemoryStore) CreateChannel(ctx context.Context, ch *model.Channel) error {
	now := time.Now().UTC()
	if ch.ID == "" {
		ch.ID = uuid.Must(uuid.NewV7()).String()
	}
	ch.CreatedAt = now
	ch.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyChannel(ch)
	s.channels[ch.ID] = &stored
	return nil
}

// UpdateChannel replaces status, credentials and metadata of an existing channel.
func (s *MemoryStore) UpdateChannel(ctx context.Context, ch *model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.channels[ch.ID]
	if !ok {
		return ErrNotFound
	}

	ch.UpdatedAt = time.Now().UTC()
	ch.CreatedAt = existing.CreatedAt

	stored := copyChannel(ch)
	s.channels[ch.ID] = &stored
	return nil
}

// DeleteChannel removes a channel.
func (s *MemoryStore) DeleteChannel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

// FilterConversations returns conversations matching f, newest first.
func (s *MemoryStore) FilterConversations(ctx context.Context, f ConversationFilter) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*memoryConversation
	for _, mc := range s.conversations {
		c := mc.conv
		if f.TenantID != "" && c.TenantID != f.TenantID {
			continue
		}
		if f.AgentID != "" && c.AgentID != f.AgentID {
			continue
		}
		if f.CustomerPhone != "" && c.CustomerPhone != f.CustomerPhone {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		matched = append(matched, mc)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq > matched[j].seq
	})

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]model.Conversation, 0, len(matched))
	for _, mc := range matched {
		out = append(out, *mc.conv.Clone())
	}
	return out, nil
}

// GetConversation returns a conversation by ID.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return mc.conv.Clone(), nil
}

// CreateConversation stores conv, assigning its ID, version and timestamps.
func (s *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	conv.Version = 1
	conv.CreatedAt = now
	conv.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.conversations[conv.ID] = &memoryConversation{conv: conv.Clone(), seq: s.seq}
	return nil
}

// UpdateConversation applies upd under a version check.
func (s *MemoryStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate, expectedVersion int) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if expectedVersion > 0 && mc.conv.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	next := mc.conv.Clone()
	if upd.Messages != nil {
		next.Messages = append([]model.Message(nil), upd.Messages...)
	}
	if upd.Status != "" {
		next.Status = upd.Status
	}
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	mc.conv = next
	return next.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func copyChannel(ch *model.Channel) model.Channel {
	out := *ch
	out.Credentials = copyMap(ch.Credentials)
	out.Metadata = copyMap(ch.Metadata)
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
