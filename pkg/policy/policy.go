package policy

import (
	"strings"

	"github.com/motorplace/vehicle-ads/pkg/classifier"
	"github.com/motorplace/vehicle-ads/pkg/models"
)

// Decision is the outcome of applying the acceptance policy to one ad.
type Decision struct {
	State    models.State
	Category *string // set exactly when State is accepted
}

// Policy decides whether classification results qualify an ad for acceptance.
type Policy struct {
	allowed map[string]struct{}
}

// New builds a policy from the allow-list of valid category labels.
// Matching is case-insensitive.
func New(validCategories []string) *Policy {
	allowed := make(map[string]struct{}, len(validCategories))
	for _, c := range validCategories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			allowed[c] = struct{}{}
		}
	}
	return &Policy{allowed: allowed}
}

// Decide scans tags in the order the oracle ranked them; the first label on
// the allow-list wins and becomes the ad's category. No match means
// rejection. Deciding twice on the same tags yields the same outcome.
func (p *Policy) Decide(tags []classifier.Tag) Decision {
	for _, tag := range tags {
		label := strings.ToLower(strings.TrimSpace(tag.Label))
		if _, ok := p.allowed[label]; ok {
			return Decision{State: models.StateAccepted, Category: &label}
		}
	}
	return Decision{State: models.StateRejected}
}

// DecideOnError maps a failed classification call to an outcome. Any failure
// becomes a rejection rather than a retry; swapping this for a
// retry-with-backoff strategy must not touch the worker state machine.
func (p *Policy) DecideOnError(err error) Decision {
	return Decision{State: models.StateRejected}
}
