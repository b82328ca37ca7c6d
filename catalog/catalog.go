// Package catalog holds the subscription plans on sale and their referral
// bonus schedules. A Catalog is immutable once loaded.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

type BonusType string

const (
	BonusPercentage BonusType = "percentage"
	BonusFixed      BonusType = "fixed"
)

type RewardKind string

const (
	RewardBonus        RewardKind = "bonus"
	RewardCourseAccess RewardKind = "course_access"
	RewardPlanUpgrade  RewardKind = "plan_upgrade"
)

type Stipend struct {
	Amount decimal.Decimal `yaml:"amount" json:"amount"`
	Months int             `yaml:"months" json:"months"`
}

type Tier struct {
	Threshold   int             `yaml:"threshold" json:"threshold"`
	BonusAmount decimal.Decimal `yaml:"bonus_amount" json:"bonus_amount"`
}

// Reward is one of a cash bonus, access to a named course or an upgrade to a
// named plan, selected by Kind.
type Reward struct {
	Kind   RewardKind      `yaml:"kind" json:"kind"`
	Bonus  decimal.Decimal `yaml:"bonus,omitempty" json:"bonus,omitempty"`
	Course string          `yaml:"course,omitempty" json:"course,omitempty"`
	Plan   string          `yaml:"plan,omitempty" json:"plan,omitempty"`
}

type Milestone struct {
	Threshold int    `yaml:"threshold" json:"threshold"`
	Reward    Reward `yaml:"reward" json:"reward"`
}

type ReferralBonus struct {
	Type       BonusType       `yaml:"type" json:"type"`
	Amount     decimal.Decimal `yaml:"amount" json:"amount"`
	Tiers      []Tier          `yaml:"tiers" json:"tiers"`
	Milestones []Milestone     `yaml:"milestones" json:"milestones"`
}

type Plan struct {
	Name           string          `yaml:"name" json:"name"`
	Price          decimal.Decimal `yaml:"price" json:"price"`
	DurationMonths int             `yaml:"duration_months" json:"duration_months"`
	Stipend        *Stipend        `yaml:"stipend,omitempty" json:"stipend,omitempty"`
	Features       []string        `yaml:"features,omitempty" json:"features,omitempty"`
	ReferralBonus  ReferralBonus   `yaml:"referral_bonus" json:"referral_bonus"`
}

type document struct {
	Plans []Plan `yaml:"plans"`
}

type Catalog struct {
	plans  []Plan
	byName map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultPlans))
}

// LoadFile reads a catalog from path, or the default catalog when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plans file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	return New(doc.Plans)
}

// New validates plans and builds a catalog from them, keeping their order.
func New(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog has no plans")
	}
	c := &Catalog{
		plans:  make([]Plan, len(plans)),
		byName: make(map[string]int, len(plans)),
	}
	copy(c.plans, plans)
	for i, p := range c.plans {
		key := normalize(p.Name)
		if key == "" {
			return nil, fmt.Errorf("plan %d: name is required", i)
		}
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("plan %q: duplicate name", p.Name)
		}
		c.byName[key] = i
	}
	for _, p := range c.plans {
		if err := c.validate(p); err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.Name, err)
		}
	}
	return c, nil
}

func (c *Catalog) validate(p Plan) error {
	if p.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if p.DurationMonths < 1 {
		return fmt.Errorf("duration_months must be at least 1")
	}
	if s := p.Stipend; s != nil {
		if !s.Amount.IsPositive() || s.Months < 1 {
			return fmt.Errorf("stipend needs a positive amount and at least one month")
		}
	}

	b := p.ReferralBonus
	switch b.Type {
	case BonusPercentage, BonusFixed:
	default:
		return fmt.Errorf("unknown referral bonus type %q", b.Type)
	}
	if b.Amount.IsNegative() {
		return fmt.Errorf("referral bonus amount must not be negative")
	}

	last := -1
	for _, t := range b.Tiers {
		if t.Threshold <= last {
			return fmt.Errorf("tier thresholds must be strictly ascending (got %d after %d)", t.Threshold, last)
		}
		last = t.Threshold
	}

	last = -1
	for _, m := range b.Milestones {
		if m.Threshold <= last {
			return fmt.Errorf("milestone thresholds must be strictly ascending (got %d after %d)", m.Threshold, last)
		}
		last = m.Threshold
		switch m.Reward.Kind {
		case RewardBonus:
			if !m.Reward.Bonus.IsPositive() {
				return fmt.Errorf("milestone %d: bonus must be positive", m.Threshold)
			}
		case RewardCourseAccess:
			if strings.TrimSpace(m.Reward.Course) == "" {
				return fmt.Errorf("milestone %d: course is required", m.Threshold)
			}
		case RewardPlanUpgrade:
			if _, ok := c.Get(m.Reward.Plan); !ok {
				return fmt.Errorf("milestone %d: upgrade to unknown plan %q", m.Threshold, m.Reward.Plan)
			}
		default:
			return fmt.Errorf("milestone %d: unknown reward kind %q", m.Threshold, m.Reward.Kind)
		}
	}
	return nil
}

// Plans returns a copy of the plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Get looks a plan up by name, ignoring case.
func (c *Catalog) Get(name string) (Plan, bool) {
	i, ok := c.byName[normalize(name)]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i], true
}

func (c *Catalog) First() Plan {
	return c.plans[0]
}

// Marshal renders the catalog back to its YAML form.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(document{Plans: c.plans})
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
