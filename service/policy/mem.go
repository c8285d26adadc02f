package policy

import (
	"sort"
	"sync"
	"time"

	serr "github.com/truxe-io/admission/error"
	"github.com/truxe-io/admission/service/limiter"
)

var defaultGlobal = limiter.Rule{Max: 50000, Window: time.Minute}

type memService struct {
	mu       sync.RWMutex
	global   limiter.Rule
	policies map[string]*Policy
}

// MemService returns a memory based Service implementation seeded with the
// given policies. Every policy is validated up front.
func MemService(global limiter.Rule, ps List) (Service, error) {
	if global.Max == 0 && global.Window == 0 {
		global = defaultGlobal
	}

	if err := global.Validate(); err != nil {
		return nil, err
	}

	s := &memService{
		global:   global,
		policies: map[string]*Policy{},
	}

	for _, p := range ps {
		if err := p.Validate(); err != nil {
			return nil, err
		}

		s.policies[p.Operation] = copyPolicy(p)
	}

	return s, nil
}

func (s *memService) Get(operation string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[operation]
	if !ok {
		return nil, serr.Wrap(serr.ErrUnknownOperation, "%s", operation)
	}

	return copyPolicy(p), nil
}

func (s *memService) Global() limiter.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.global
}

func (s *memService) Operations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]string, 0, len(s.policies))

	for op := range s.policies {
		ops = append(ops, op)
	}

	sort.Strings(ops)

	return ops
}

func (s *memService) Put(p *Policy) (*Policy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[p.Operation] = copyPolicy(p)

	return copyPolicy(p), nil
}

func (s *memService) SetRule(operation string, d Dimension, r limiter.Rule) error {
	if _, ok := dimensionNames[d]; !ok {
		return serr.Wrap(serr.ErrUnknownDimension, "%d", d)
	}

	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[operation]
	if !ok {
		p = &Policy{
			Operation: operation,
			Rules:     map[Dimension]limiter.Rule{},
		}
		s.policies[operation] = p
	}

	p.Rules[d] = r

	return nil
}

func copyPolicy(p *Policy) *Policy {
	c := &Policy{
		Operation:   p.Operation,
		RequireRole: p.RequireRole,
		Rules:       make(map[Dimension]limiter.Rule, len(p.Rules)),
	}

	for d, r := range p.Rules {
		c.Rules[d] = r
	}

	return c
}
