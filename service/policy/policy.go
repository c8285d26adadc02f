package policy

import (
	"time"

	serr "github.com/truxe-io/admission/error"
	"github.com/truxe-io/admission/service/limiter"
)

// Dimensions along which an operation is independently metered.
const (
	DimensionIP Dimension = iota + 1
	DimensionUser
	DimensionEmail
	DimensionToken
	DimensionGlobal
)

// CheckOrder is the fixed precedence in which per-identifier dimensions are
// evaluated. Keeping the order fixed makes the reported violation
// deterministic when multiple dimensions are exhausted at once.
var CheckOrder = []Dimension{
	DimensionIP,
	DimensionUser,
	DimensionEmail,
	DimensionToken,
}

var dimensionNames = map[Dimension]string{
	DimensionIP:     "perIP",
	DimensionUser:   "perUser",
	DimensionEmail:  "perEmail",
	DimensionToken:  "perToken",
	DimensionGlobal: "global",
}

// Dimension is an axis along which traffic is metered.
type Dimension uint8

func (d Dimension) String() string {
	if n, ok := dimensionNames[d]; ok {
		return n
	}

	return "unknown"
}

// ParseDimension maps a wire name to its Dimension.
func ParseDimension(name string) (Dimension, error) {
	for d, n := range dimensionNames {
		if n == name {
			return d, nil
		}
	}

	return 0, serr.Wrap(serr.ErrUnknownDimension, "%s", name)
}

// Policy maps one protected operation to its per-dimension rules. Policies
// are read-only at request time and patched only by admin actions.
type Policy struct {
	Operation   string
	RequireRole string
	Rules       map[Dimension]limiter.Rule
}

// Validate checks for semantic correctness. A garbled dimension or rule fails
// at load time instead of silently no-opping at request time.
func (p *Policy) Validate() error {
	if p.Operation == "" {
		return serr.Wrap(serr.ErrInvalidRule, "operation missing")
	}

	for d, r := range p.Rules {
		if _, ok := dimensionNames[d]; !ok {
			return serr.Wrap(serr.ErrUnknownDimension, "policy %s", p.Operation)
		}

		if err := r.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// List is a Policy collection.
type List []*Policy

// Service is the registry of operation policies plus the platform-wide
// global rule.
type Service interface {
	Get(operation string) (*Policy, error)
	Global() limiter.Rule
	Operations() []string
	Put(p *Policy) (*Policy, error)
	SetRule(operation string, d Dimension, r limiter.Rule) error
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service

// Tighten returns the emergency-mode variant of a rule: finite maxima are
// halved, floored at one. Unlimited rules stay unlimited.
func Tighten(r limiter.Rule) limiter.Rule {
	if r.Max == limiter.Unlimited {
		return r
	}

	if r.Max > 1 {
		r.Max = r.Max / 2
	}

	return r
}

// Defaults returns the baseline policies for the auth surfaces.
func Defaults() List {
	return List{
		{
			Operation: "login",
			Rules: map[Dimension]limiter.Rule{
				DimensionIP:    {Max: 5, Window: time.Minute},
				DimensionEmail: {Max: 10, Window: time.Hour},
				DimensionGlobal: {
					Max:    10000,
					Window: time.Minute,
				},
			},
		},
		{
			Operation: "magiclink",
			Rules: map[Dimension]limiter.Rule{
				DimensionIP:    {Max: 3, Window: time.Minute},
				DimensionEmail: {Max: 5, Window: time.Hour},
			},
		},
		{
			Operation: "signup",
			Rules: map[Dimension]limiter.Rule{
				DimensionIP:    {Max: 3, Window: time.Hour},
				DimensionEmail: {Max: 1, Window: 24 * time.Hour},
			},
		},
		{
			Operation: "token.refresh",
			Rules: map[Dimension]limiter.Rule{
				DimensionToken: {Max: 10, Window: time.Hour},
				DimensionUser:  {Max: 60, Window: time.Hour},
			},
		},
		{
			Operation: "api",
			Rules: map[Dimension]limiter.Rule{
				DimensionIP:   {Max: 600, Window: time.Minute},
				DimensionUser: {Max: 1000, Window: time.Minute},
			},
		},
	}
}
