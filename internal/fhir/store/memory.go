package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fhiraudit/internal/fhir"
	"fhiraudit/pkg/platform/sentinel"
)

type key struct {
	rt fhir.ResourceType
	id string
}

// InMemory is a resource store for development and tests. SearchAll returns
// resources in creation order; updates keep a resource's original position.
type InMemory struct {
	mu        sync.RWMutex
	resources map[key]*fhir.Resource
	order     map[fhir.ResourceType][]string
	now       func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		resources: make(map[key]*fhir.Resource),
		order:     make(map[fhir.ResourceType][]string),
		now:       time.Now,
	}
}

// Create stores res under a freshly generated id.
func (s *InMemory) Create(_ context.Context, res *fhir.Resource) (*fhir.Resource, error) {
	stored, err := res.WithID(uuid.NewString())
	if err != nil {
		return nil, err
	}
	stored.CreatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[key{stored.Type, stored.ID}] = stored
	s.order[stored.Type] = append(s.order[stored.Type], stored.ID)
	return clone(stored), nil
}

func (s *InMemory) Read(_ context.Context, rt fhir.ResourceType, id string) (*fhir.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[key{rt, id}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(res), nil
}

func (s *InMemory) SearchAll(_ context.Context, rt fhir.ResourceType) ([]*fhir.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[rt]
	out := make([]*fhir.Resource, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.resources[key{rt, id}]))
	}
	return out, nil
}

// Update stores res under its own id, creating it when absent.
func (s *InMemory) Update(_ context.Context, res *fhir.Resource) (*fhir.Resource, bool, error) {
	if res.ID == "" {
		return nil, false, errMissingID
	}
	stored, err := res.WithID(res.ID)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{stored.Type, stored.ID}
	existing, ok := s.resources[k]
	if ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = s.now()
		s.order[stored.Type] = append(s.order[stored.Type], stored.ID)
	}
	s.resources[k] = stored
	return clone(stored), !ok, nil
}

func (s *InMemory) Delete(_ context.Context, rt fhir.ResourceType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{rt, id}
	if _, ok := s.resources[k]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.resources, k)
	s.order[rt] = slices.DeleteFunc(s.order[rt], func(v string) bool { return v == id })
	return nil
}

func clone(res *fhir.Resource) *fhir.Resource {
	out := *res
	out.Body = append([]byte(nil), res.Body...)
	return &out
}
