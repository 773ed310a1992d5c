// Package policy supplies per-category replay delay rules to the scheduling
// engine. Policies can be swapped at runtime without restarting a build: each
// catalog query asks the provider again.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

var ErrNoPolicy = errors.New("policy: no delay policy for category")

type Provider interface {
	DelayPolicy(ctx context.Context, category model.Category) (model.DelayPolicy, error)
}

// Set is an immutable category -> policy table with an optional fallback.
type Set struct {
	byCategory map[model.Category]model.DelayPolicy
	fallback   *model.DelayPolicy
}

// NewSet validates and indexes policies. fallback may be nil.
func NewSet(policies []model.DelayPolicy, fallback *model.DelayPolicy) (*Set, error) {
	s := &Set{byCategory: make(map[model.Category]model.DelayPolicy, len(policies))}
	for _, p := range policies {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := s.byCategory[p.Category]; dup {
			return nil, fmt.Errorf("policy: duplicate policy for category %q", p.Category)
		}
		s.byCategory[p.Category] = p
	}
	if fallback != nil {
		if err := validate(*fallback); err != nil {
			return nil, err
		}
		fb := *fallback
		s.fallback = &fb
	}
	return s, nil
}

func validate(p model.DelayPolicy) error {
	if p.BaseDelayHours < 0 || p.AdditionalDelayPerAiring < 0 {
		return fmt.Errorf("policy: negative delay for category %q", p.Category)
	}
	return nil
}

func (s *Set) DelayPolicy(_ context.Context, category model.Category) (model.DelayPolicy, error) {
	if p, ok := s.byCategory[category]; ok {
		return p, nil
	}
	if s.fallback != nil {
		p := *s.fallback
		p.Category = category
		return p, nil
	}
	return model.DelayPolicy{}, fmt.Errorf("%w %q", ErrNoPolicy, category)
}

// Len is the number of explicit category policies.
func (s *Set) Len() int { return len(s.byCategory) }

// LoadFunc produces a fresh policy set, e.g. from the engine file or the database.
type LoadFunc func(ctx context.Context) (*Set, error)

// Reloader serves the most recently loaded Set. A failed reload keeps the
// previous set in place.
type Reloader struct {
	load    LoadFunc
	current atomic.Pointer[Set]
	mu      sync.Mutex
}

// NewReloader performs the initial load.
func NewReloader(ctx context.Context, load LoadFunc) (*Reloader, error) {
	r := &Reloader{load: load}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reloader) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("delay policy reload failed, keeping previous policies")
		return fmt.Errorf("policy: reload: %w", err)
	}
	r.current.Store(set)
	log.Info().Int("categories", set.Len()).Msg("delay policies loaded")
	return nil
}

func (r *Reloader) DelayPolicy(ctx context.Context, category model.Category) (model.DelayPolicy, error) {
	return r.current.Load().DelayPolicy(ctx, category)
}
