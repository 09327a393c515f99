// Package sequence issues business serial numbers such as PO20240131000042.
// Counters live in the cache layer so that every instance shares them.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nimbleforge/forge/internal/cache"
)

// ResetCycle selects the period after which a counter starts over.
type ResetCycle string

const (
	CycleNone    ResetCycle = "NONE"
	CycleDaily   ResetCycle = "DAILY"
	CycleMonthly ResetCycle = "MONTHLY"
	CycleYearly  ResetCycle = "YEARLY"
)

var (
	ErrUnknownRule   = errors.New("sequence rule not found")
	ErrInvalidRule   = errors.New("invalid sequence rule")
	ErrCounterFailed = errors.New("sequence counter unavailable")
)

const maxWidth = 18

var ruleName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.\-]{0,63}$`)

// ParseResetCycle accepts the cycle name case-insensitively; empty means NONE.
func ParseResetCycle(s string) (ResetCycle, error) {
	switch c := ResetCycle(strings.ToUpper(strings.TrimSpace(s))); c {
	case "":
		return CycleNone, nil
	case CycleNone, CycleDaily, CycleMonthly, CycleYearly:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown reset cycle %q", ErrInvalidRule, s)
	}
}

// CycleKey returns the period identifier of t for cycle. layout overrides
// the cycle's default date layout.
func CycleKey(cycle ResetCycle, layout string, t time.Time) string {
	var def string
	switch cycle {
	case CycleDaily:
		def = "20060102"
	case CycleMonthly:
		def = "200601"
	case CycleYearly:
		def = "2006"
	default:
		return ""
	}
	if layout == "" {
		layout = def
	}
	return t.Format(layout)
}

// Rule describes one sequence.
type Rule struct {
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	DateLayout string     `json:"dateLayout,omitempty"`
	Width      int        `json:"width"`
	ResetCycle ResetCycle `json:"resetCycle"`
}

// Validate normalises the cycle and checks name and width.
func (r *Rule) Validate() error {
	if !ruleName.MatchString(r.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidRule, r.Name)
	}
	if r.Width < 0 || r.Width > maxWidth {
		return fmt.Errorf("%w: width must be between 0 and %d", ErrInvalidRule, maxWidth)
	}
	cycle, err := ParseResetCycle(string(r.ResetCycle))
	if err != nil {
		return err
	}
	r.ResetCycle = cycle
	return nil
}

// Format renders prefix, cycle key and the zero-padded counter.
func (r Rule) Format(cycleKey string, n int64) string {
	return fmt.Sprintf("%s%s%0*d", r.Prefix, cycleKey, r.Width, n)
}

func counterKey(name, cycleKey string) string {
	if cycleKey == "" {
		return "seq:" + name
	}
	return "seq:" + name + ":" + cycleKey
}

// Generator hands out values for registered rules.
type Generator struct {
	counters *cache.Service
	now      func() time.Time

	mu    sync.RWMutex
	rules map[string]Rule
}

// NewGenerator uses counters for atomic increments.
func NewGenerator(counters *cache.Service) *Generator {
	return &Generator{counters: counters, now: time.Now, rules: make(map[string]Rule)}
}

// Register adds or replaces a rule.
func (g *Generator) Register(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.rules[rule.Name] = rule
	g.mu.Unlock()
	return nil
}

// Rule returns the registered rule called name.
func (g *Generator) Rule(name string) (Rule, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rules[name]
	return r, ok
}

// Next issues the next value for the named rule.
func (g *Generator) Next(ctx context.Context, name string) (string, error) {
	rule, ok := g.Rule(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRule, name)
	}
	return g.NextFor(ctx, rule)
}

// NextFor issues the next value for rule without requiring registration.
func (g *Generator) NextFor(ctx context.Context, rule Rule) (string, error) {
	key := CycleKey(rule.ResetCycle, rule.DateLayout, g.now())
	n, err := g.counters.Increment(ctx, counterKey(rule.Name, key), 1)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCounterFailed, err)
	}
	return rule.Format(key, n), nil
}
