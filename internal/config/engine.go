package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/policy"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
)

var ErrInvalidEngine = errors.New("invalid engine config")

// DefaultDelayHours is the fallback spacing for categories the
// delay_policies table does not list.
const DefaultDelayHours = 24

// PolicySource selects where delay policies are read from. Unset, it is the
// file when the file lists any policy and the delay_policies table otherwise.
type PolicySource string

const (
	PoliciesFromFile     PolicySource = "file"
	PoliciesFromDatabase PolicySource = "database"
)

// Engine is the YAML engine file. Pointer fields distinguish "unset" from an
// explicit zero.
type Engine struct {
	PolicySource  PolicySource        `yaml:"policy_source"`
	Policies      []model.DelayPolicy `yaml:"delay_policies"`
	DefaultPolicy *model.DelayPolicy  `yaml:"default_policy"`

	Pattern  []scheduler.Slot `yaml:"pattern"`
	Featured Featured         `yaml:"featured"`

	MaxErrors      int            `yaml:"max_errors"`
	Lookback       *time.Duration `yaml:"lookback"`
	CandidateLimit int            `yaml:"candidate_limit"`
	LockTTL        time.Duration  `yaml:"lock_ttl"`
	StoreRetry     StoreRetry     `yaml:"store_retry"`

	RotationSeed uint64 `yaml:"rotation_seed"`
}

type Featured struct {
	Interval *time.Duration `yaml:"interval"`
	Category model.Category `yaml:"category"`
}

type StoreRetry struct {
	Retries int           `yaml:"retries"`
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// LoadEngine reads and validates the engine file. An empty path yields the defaults.
func LoadEngine(path string) (*Engine, error) {
	e := &Engine{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine config: %w", err)
		}
		if err := yaml.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("failed to parse engine config YAML: %w", err)
		}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate fills unset fields with defaults and rejects inconsistent values.
func (e *Engine) Validate() error {
	d := scheduler.DefaultConfig()

	switch e.PolicySource {
	case "":
		e.PolicySource = PoliciesFromDatabase
		if len(e.Policies) > 0 || e.DefaultPolicy != nil {
			e.PolicySource = PoliciesFromFile
		}
	case PoliciesFromFile, PoliciesFromDatabase:
	default:
		return fmt.Errorf("%w: unknown policy_source %q", ErrInvalidEngine, e.PolicySource)
	}
	if e.PolicySource == PoliciesFromDatabase && e.DefaultPolicy == nil {
		e.DefaultPolicy = &model.DelayPolicy{BaseDelayHours: DefaultDelayHours}
	}
	set, err := e.PolicySet()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEngine, err)
	}

	if len(e.Pattern) == 0 {
		e.Pattern = d.Pattern
	}
	if e.Featured.Interval == nil {
		iv := d.FeaturedInterval
		e.Featured.Interval = &iv
	} else if *e.Featured.Interval < 0 {
		return fmt.Errorf("%w: negative featured interval", ErrInvalidEngine)
	}
	if e.Featured.Category == "" {
		e.Featured.Category = d.FeaturedCategory
	}

	if e.MaxErrors < 0 || e.CandidateLimit < 0 || e.StoreRetry.Retries < 0 {
		return fmt.Errorf("%w: max_errors, candidate_limit and store_retry.retries must not be negative", ErrInvalidEngine)
	}
	if e.MaxErrors == 0 {
		e.MaxErrors = d.MaxErrors
	}
	if e.CandidateLimit == 0 {
		e.CandidateLimit = d.CandidateLimit
	}
	if e.Lookback == nil {
		lb := d.Lookback
		e.Lookback = &lb
	} else if *e.Lookback < 0 {
		return fmt.Errorf("%w: negative lookback", ErrInvalidEngine)
	}
	if e.LockTTL <= 0 {
		e.LockTTL = d.LockTTL
	}
	if e.StoreRetry == (StoreRetry{}) {
		e.StoreRetry = StoreRetry(d.Backoff)
	}
	if e.StoreRetry.Initial <= 0 {
		return fmt.Errorf("%w: store_retry.initial must be positive", ErrInvalidEngine)
	}
	if e.PolicySource == PoliciesFromFile {
		return e.checkCoverage(set)
	}
	return nil
}

// checkCoverage makes sure every category the pattern or featured slot can
// ask for resolves to a policy, so a build never stops on a missing one.
func (e *Engine) checkCoverage(set *policy.Set) error {
	categories := make([]model.Category, 0, len(e.Pattern)+1)
	for _, s := range e.Pattern {
		if !s.IsPool() {
			categories = append(categories, s.Category)
		}
	}
	if *e.Featured.Interval > 0 {
		categories = append(categories, e.Featured.Category)
	}
	for _, c := range categories {
		if _, err := set.DelayPolicy(context.Background(), c); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEngine, err)
		}
	}
	return nil
}

// Scheduler converts a validated engine file into the fill loop config.
func (e *Engine) Scheduler() scheduler.Config {
	return scheduler.Config{
		Pattern:          append([]scheduler.Slot(nil), e.Pattern...),
		FeaturedInterval: *e.Featured.Interval,
		FeaturedCategory: e.Featured.Category,
		MaxErrors:        e.MaxErrors,
		Lookback:         *e.Lookback,
		CandidateLimit:   e.CandidateLimit,
		LockTTL:          e.LockTTL,
		Backoff:          retry.Backoff(e.StoreRetry),
	}
}

// PolicySet builds the delay policy table described by the file.
func (e *Engine) PolicySet() (*policy.Set, error) {
	return policy.NewSet(e.Policies, e.DefaultPolicy)
}

// PolicyLister is the subset of the store used for database-held policies.
type PolicyLister interface {
	ListDelayPolicies(ctx context.Context) ([]model.DelayPolicy, error)
}

// PolicyLoader returns the reload function for the configured policy source.
// File policies are read again from path on every reload so edits take
// effect without a restart.
func (e *Engine) PolicyLoader(path string, store PolicyLister) policy.LoadFunc {
	fallback := e.DefaultPolicy
	if e.PolicySource == PoliciesFromDatabase {
		return func(ctx context.Context) (*policy.Set, error) {
			policies, err := store.ListDelayPolicies(ctx)
			if err != nil {
				return nil, err
			}
			return policy.NewSet(policies, fallback)
		}
	}
	return func(context.Context) (*policy.Set, error) {
		if path == "" {
			return e.PolicySet()
		}
		fresh, err := LoadEngine(path)
		if err != nil {
			return nil, err
		}
		return fresh.PolicySet()
	}
}
