package plan

import (
	"time"

	"github.com/truxe-io/admission/service/limiter"
)

// Subscription tiers.
const (
	Free       Plan = "free"
	Starter    Plan = "starter"
	Pro        Plan = "pro"
	Enterprise Plan = "enterprise"
)

// Metered actions with named quotas.
const (
	ActionAPIRequests   Action = "apiRequestsPerHour"
	ActionEmails        Action = "emailsPerMonth"
	ActionMagicLinks    Action = "magicLinksPerHour"
	ActionRefreshTokens Action = "refreshTokensPerHour"
)

const month = 30 * 24 * time.Hour

// Action names a plan quota.
type Action string

// Plan is a subscription tier.
type Plan string

// IsValid reports whether p is a known tier.
func (p Plan) IsValid() bool {
	_, ok := quotas[p]
	return ok
}

var quotas = map[Plan]map[Action]limiter.Rule{
	Free: {
		ActionAPIRequests:   {Max: 1000, Window: time.Hour},
		ActionEmails:        {Max: 100, Window: month},
		ActionMagicLinks:    {Max: 5, Window: time.Hour},
		ActionRefreshTokens: {Max: 20, Window: time.Hour},
	},
	Starter: {
		ActionAPIRequests:   {Max: 10000, Window: time.Hour},
		ActionEmails:        {Max: 2000, Window: month},
		ActionMagicLinks:    {Max: 20, Window: time.Hour},
		ActionRefreshTokens: {Max: 60, Window: time.Hour},
	},
	Pro: {
		ActionAPIRequests:   {Max: 100000, Window: time.Hour},
		ActionEmails:        {Max: 20000, Window: month},
		ActionMagicLinks:    {Max: 100, Window: time.Hour},
		ActionRefreshTokens: {Max: 300, Window: time.Hour},
	},
	Enterprise: {
		ActionAPIRequests:   {Max: limiter.Unlimited, Window: time.Hour},
		ActionEmails:        {Max: limiter.Unlimited, Window: month},
		ActionMagicLinks:    {Max: limiter.Unlimited, Window: time.Hour},
		ActionRefreshTokens: {Max: limiter.Unlimited, Window: time.Hour},
	},
}

var operationActions = map[string]Action{
	"api":           ActionAPIRequests,
	"magiclink":     ActionMagicLinks,
	"token.refresh": ActionRefreshTokens,
}

// ActionFor maps an operation to its metered action, if any.
func ActionFor(operation string) (Action, bool) {
	a, ok := operationActions[operation]
	return a, ok
}

// QuotaRule returns the limit rule for the plan and action. ok is false when
// the action carries no quota for the plan.
func QuotaRule(p Plan, a Action) (limiter.Rule, bool) {
	table, ok := quotas[p]
	if !ok {
		table = quotas[Free]
	}

	r, ok := table[a]

	return r, ok
}

// Service resolves an identity to its subscription tier.
type Service interface {
	Resolve(userID, orgID string) (Plan, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
