package domain

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/allisson/admissions/internal/errors"
)

// Rule allows actors holding any of Roles to move an application from From to any of To
// when giving Reason.
type Rule struct {
	From   Status     `yaml:"from"`
	Reason ReasonCode `yaml:"reason"`
	Roles  []Role     `yaml:"roles"`
	To     []Status   `yaml:"to"`
}

type ruleKey struct {
	from   Status
	reason ReasonCode
	role   Role
}

// Policy is the static decision table (from, reason, role) -> allowed targets.
// A Policy is immutable once built and safe for concurrent use.
type Policy struct {
	allowed map[ruleKey]map[Status]struct{}
}

// NewPolicy builds a Policy from rules after validating every status, reason, and role.
func NewPolicy(rules []Rule) (*Policy, error) {
	p := &Policy{allowed: make(map[ruleKey]map[Status]struct{})}
	if err := p.add(rules); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) add(rules []Rule) error {
	for i, rule := range rules {
		if err := rule.validate(); err != nil {
			return errors.Wrapf(err, "rule %d", i)
		}
		for _, role := range rule.Roles {
			key := ruleKey{from: rule.From, reason: rule.Reason, role: role}
			targets, ok := p.allowed[key]
			if !ok {
				targets = make(map[Status]struct{})
				p.allowed[key] = targets
			}
			for _, to := range rule.To {
				targets[to] = struct{}{}
			}
		}
	}
	return nil
}

func (r Rule) validate() error {
	if !r.From.Valid() {
		return errors.Wrapf(ErrInvalidPolicy, "unknown status %q", r.From)
	}
	if !r.Reason.Valid() {
		return errors.Wrapf(ErrInvalidPolicy, "unknown reason code %q", r.Reason)
	}
	if len(r.Roles) == 0 || len(r.To) == 0 {
		return errors.Wrap(ErrInvalidPolicy, "rule needs at least one role and one target")
	}
	for _, role := range r.Roles {
		if !role.Valid() {
			return errors.Wrapf(ErrInvalidPolicy, "unknown role %q", role)
		}
	}
	for _, to := range r.To {
		if !to.Valid() {
			return errors.Wrapf(ErrInvalidPolicy, "unknown status %q", to)
		}
		if to == r.From {
			return errors.Wrapf(ErrInvalidPolicy, "self transition on %q", to)
		}
	}
	return nil
}

// Allows reports whether role may move an application from from to to with reason.
// Unknown statuses, reasons, and roles are denied.
func (p *Policy) Allows(from, to Status, reason ReasonCode, role Role) bool {
	_, ok := p.allowed[ruleKey{from: from, reason: reason, role: role}][to]
	return ok
}

// Targets returns the sorted statuses reachable from from with reason by role.
func (p *Policy) Targets(from Status, reason ReasonCode, role Role) []Status {
	targets := p.allowed[ruleKey{from: from, reason: reason, role: role}]
	out := make([]Status, 0, len(targets))
	for to := range targets {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rules returns the table as one rule per (from, reason, to) with the sorted roles that
// may take it. The listing is ordered by lifecycle status, then reason, then target.
func (p *Policy) Rules() []Rule {
	type edge struct {
		from   Status
		reason ReasonCode
		to     Status
	}
	roles := make(map[edge][]Role)
	for key, targets := range p.allowed {
		for to := range targets {
			e := edge{from: key.from, reason: key.reason, to: to}
			roles[e] = append(roles[e], key.role)
		}
	}

	order := make(map[Status]int)
	for i, s := range AllStatuses() {
		order[s] = i
	}

	rules := make([]Rule, 0, len(roles))
	for e, rs := range roles {
		sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
		rules = append(rules, Rule{From: e.from, Reason: e.reason, Roles: rs, To: []Status{e.to}})
	}
	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.From != b.From {
			return order[a.From] < order[b.From]
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return order[a.To[0]] < order[b.To[0]]
	})
	return rules
}

// Merge returns a new Policy with the rules of p and extra. Nothing is ever removed.
func (p *Policy) Merge(extra []Rule) (*Policy, error) {
	merged, err := NewPolicy(p.Rules())
	if err != nil {
		return nil, err
	}
	if err := merged.add(extra); err != nil {
		return nil, err
	}
	return merged, nil
}

type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadPolicyYAML reads rules in the form
//
//	rules:
//	  - from: UNDER_REVIEW
//	    reason: SEATS_EXHAUSTED
//	    roles: [SYSTEM]
//	    to: [WAITLISTED]
func LoadPolicyYAML(r io.Reader) ([]Rule, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var file policyFile
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(ErrInvalidPolicy, fmt.Sprintf("failed to decode policy: %v", err))
	}

	for i, rule := range file.Rules {
		if err := rule.validate(); err != nil {
			return nil, errors.Wrapf(err, "rule %d", i)
		}
	}
	return file.Rules, nil
}

// DefaultPolicy returns the built-in admission workflow.
func DefaultPolicy() *Policy {
	guardian := []Role{RoleApoderado, RoleAdmin}
	staff := []Role{RoleCoordinator, RoleAdmin}
	automated := []Role{RoleCoordinator, RoleAdmin, RoleSystem}
	housekeeping := []Role{RoleAdmin, RoleSystem}

	rules := []Rule{
		{From: StatusDraft, Reason: ReasonFormSubmitted, Roles: guardian, To: []Status{StatusPending}},
		{From: StatusPending, Reason: ReasonReviewStarted, Roles: automated, To: []Status{StatusUnderReview}},
		{From: StatusUnderReview, Reason: ReasonDocumentsMissing, Roles: staff, To: []Status{StatusDocumentsRequested}},
		{From: StatusUnderReview, Reason: ReasonInterviewRequired, Roles: staff, To: []Status{StatusInterviewScheduled}},
		{From: StatusUnderReview, Reason: ReasonEvaluationPassed, Roles: staff, To: []Status{StatusApproved}},
		{From: StatusUnderReview, Reason: ReasonEvaluationFailed, Roles: staff, To: []Status{StatusRejected}},
		{From: StatusUnderReview, Reason: ReasonSeatsExhausted, Roles: automated, To: []Status{StatusWaitlisted}},
		{
			From:   StatusDocumentsRequested,
			Reason: ReasonDocumentsSubmitted,
			Roles:  []Role{RoleApoderado, RoleCoordinator, RoleAdmin},
			To:     []Status{StatusUnderReview},
		},
		{From: StatusDocumentsRequested, Reason: ReasonDeadlineExpired, Roles: automated, To: []Status{StatusRejected}},
		{From: StatusInterviewScheduled, Reason: ReasonInterviewCompleted, Roles: staff, To: []Status{StatusUnderReview}},
		{From: StatusInterviewScheduled, Reason: ReasonEvaluationPassed, Roles: staff, To: []Status{StatusApproved}},
		{From: StatusInterviewScheduled, Reason: ReasonEvaluationFailed, Roles: staff, To: []Status{StatusRejected}},
		{From: StatusWaitlisted, Reason: ReasonSeatAvailable, Roles: automated, To: []Status{StatusApproved}},
		{From: StatusWaitlisted, Reason: ReasonDeadlineExpired, Roles: housekeeping, To: []Status{StatusRejected}},
		{
			From:   StatusApproved,
			Reason: ReasonEnrollmentConfirmed,
			Roles:  []Role{RoleApoderado, RoleCoordinator, RoleAdmin},
			To:     []Status{StatusEnrolled},
		},
		{From: StatusApproved, Reason: ReasonDeadlineExpired, Roles: housekeeping, To: []Status{StatusRejected}},
		{From: StatusRejected, Reason: ReasonAppealAccepted, Roles: []Role{RoleAdmin}, To: []Status{StatusUnderReview}},
		{From: StatusRejected, Reason: ReasonRecordArchived, Roles: housekeeping, To: []Status{StatusArchived}},
		{From: StatusEnrolled, Reason: ReasonRecordArchived, Roles: housekeeping, To: []Status{StatusArchived}},
		{From: StatusWithdrawn, Reason: ReasonRecordArchived, Roles: housekeeping, To: []Status{StatusArchived}},
	}

	for _, from := range []Status{
		StatusDraft,
		StatusPending,
		StatusUnderReview,
		StatusDocumentsRequested,
		StatusInterviewScheduled,
		StatusWaitlisted,
		StatusApproved,
	} {
		rules = append(rules, Rule{
			From:   from,
			Reason: ReasonApplicantWithdrew,
			Roles:  guardian,
			To:     []Status{StatusWithdrawn},
		})
	}

	policy, err := NewPolicy(rules)
	if err != nil {
		panic(err)
	}
	return policy
}
