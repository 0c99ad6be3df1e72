package riskgate

import (
	"strconv"
	"strings"
)

// RuleField is the closed set of request attributes a policy rule may test.
type RuleField uint8

const (
	// FieldUnknown is the zero value; rules carrying it never match validation.
	FieldUnknown RuleField = iota
	// FieldOrigin tests the network origin of the attempt.
	FieldOrigin
	// FieldCountry tests the resolved origin country.
	FieldCountry
	// FieldClient tests the opaque client-identity string.
	FieldClient
	// FieldHourOfDay tests the UTC hour (0-23) of the attempt.
	FieldHourOfDay
	// FieldRole tests the role of the identity under attack, when known.
	FieldRole
)

// RuleOp is the closed set of comparison operators.
type RuleOp uint8

const (
	// OpUnknown is the zero value; rules carrying it never match validation.
	OpUnknown RuleOp = iota
	// OpEquals is a case-sensitive string equality test.
	OpEquals
	// OpNotEquals is a case-sensitive string inequality test.
	OpNotEquals
	// OpContains is a case-insensitive substring test.
	OpContains
	// OpGreaterThan is a numeric comparison; unparseable sides skip the rule.
	OpGreaterThan
	// OpLessThan is a numeric comparison; unparseable sides skip the rule.
	OpLessThan
)

// RuleAction is the discrete consequence a matched rule contributes.
type RuleAction string

const (
	// ActionBlock terminally rejects the attempt.
	ActionBlock RuleAction = "BLOCK"
	// ActionAlert flags the attempt for observers without changing its outcome.
	ActionAlert RuleAction = "ALERT"
	// ActionRequireMFA forces the second-factor path even for trusted devices.
	ActionRequireMFA RuleAction = "REQUIRE_MFA"
)

// PolicyRule is a stored condition-to-action rule. Rules are immutable
// within a single decision: the engine snapshots the active set before
// evaluating.
type PolicyRule struct {
	RuleID     string
	Name       string
	Field      RuleField
	Op         RuleOp
	Value      string
	Action     RuleAction
	Likelihood int
	Impact     int
	Active     bool
}

// RuleContext is the request attribute snapshot rules evaluate against.
// Empty string fields count as absent and silently skip rules that test
// them; HasHour gates the hour field the same way.
type RuleContext struct {
	Origin  string
	Country string
	Client  string
	Hour    int
	HasHour bool
	Role    Role
}

func (c RuleContext) resolve(field RuleField) (string, bool) {
	switch field {
	case FieldOrigin:
		return c.Origin, c.Origin != ""
	case FieldCountry:
		return c.Country, c.Country != ""
	case FieldClient:
		return c.Client, c.Client != ""
	case FieldHourOfDay:
		return strconv.Itoa(c.Hour), c.HasHour
	case FieldRole:
		return string(c.Role), c.Role != ""
	case FieldUnknown:
		return "", false
	}
	return "", false
}

// RuleOutcome is the aggregate result of evaluating a rule set.
type RuleOutcome struct {
	Actions    []RuleAction
	Likelihood int
	Impact     int
	Matched    []string
}

// Has reports whether any matched rule contributed the given action.
func (o RuleOutcome) Has(action RuleAction) bool {
	for _, a := range o.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// EvaluateRules evaluates every active rule against ctx and returns the
// deduplicated action set plus the high-watermark (likelihood, impact)
// across all matched rules, starting from the (1, 1) baseline.
//
// EvaluateRules is a pure function of its inputs: it reads no engine state
// and a faulty rule never aborts evaluation of the remaining rules.
func EvaluateRules(rules []PolicyRule, ctx RuleContext) RuleOutcome {
	outcome := RuleOutcome{Likelihood: 1, Impact: 1}
	seen := make(map[RuleAction]struct{}, 3)

	for _, rule := range rules {
		if !rule.Active {
			continue
		}

		matched := ruleMatches(rule, ctx)
		if !matched {
			continue
		}

		if _, dup := seen[rule.Action]; !dup {
			seen[rule.Action] = struct{}{}
			outcome.Actions = append(outcome.Actions, rule.Action)
		}
		outcome.Matched = append(outcome.Matched, rule.Name)

		// High-watermark, never additive: one severe rule dominates many mild ones.
		if rule.Likelihood > outcome.Likelihood {
			outcome.Likelihood = rule.Likelihood
		}
		if rule.Impact > outcome.Impact {
			outcome.Impact = rule.Impact
		}
	}

	return outcome
}

func ruleMatches(rule PolicyRule, ctx RuleContext) bool {
	actual, ok := ctx.resolve(rule.Field)
	if !ok {
		return false
	}

	switch rule.Op {
	case OpEquals:
		return actual == rule.Value
	case OpNotEquals:
		return actual != rule.Value
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(rule.Value))
	case OpGreaterThan, OpLessThan:
		left, err := strconv.ParseFloat(actual, 64)
		if err != nil {
			return false
		}
		right, err := strconv.ParseFloat(rule.Value, 64)
		if err != nil {
			return false
		}
		if rule.Op == OpGreaterThan {
			return left > right
		}
		return left < right
	case OpUnknown:
		return false
	}
	return false
}

// ValidateRule rejects rules whose field, operator, action, or severity
// fall outside the closed model.
func ValidateRule(rule PolicyRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return ErrRuleInvalid
	}
	if _, err := ruleFieldName(rule.Field); err != nil {
		return err
	}
	if _, err := ruleOpName(rule.Op); err != nil {
		return err
	}
	switch rule.Action {
	case ActionBlock, ActionAlert, ActionRequireMFA:
	default:
		return ErrRuleInvalid
	}
	if rule.Likelihood < 1 || rule.Likelihood > 5 {
		return ErrRuleInvalid
	}
	if rule.Impact < 1 || rule.Impact > 5 {
		return ErrRuleInvalid
	}
	if rule.Op == OpGreaterThan || rule.Op == OpLessThan {
		if _, err := strconv.ParseFloat(rule.Value, 64); err != nil {
			return ErrRuleInvalid
		}
	}
	return nil
}

func ruleFieldName(field RuleField) (string, error) {
	switch field {
	case FieldOrigin:
		return "origin", nil
	case FieldCountry:
		return "country", nil
	case FieldClient:
		return "client", nil
	case FieldHourOfDay:
		return "hour_of_day", nil
	case FieldRole:
		return "role", nil
	case FieldUnknown:
		return "", ErrRuleInvalid
	}
	return "", ErrRuleInvalid
}

func parseRuleField(name string) (RuleField, error) {
	switch name {
	case "origin":
		return FieldOrigin, nil
	case "country":
		return FieldCountry, nil
	case "client":
		return FieldClient, nil
	case "hour_of_day":
		return FieldHourOfDay, nil
	case "role":
		return FieldRole, nil
	default:
		return FieldUnknown, ErrRuleInvalid
	}
}

func ruleOpName(op RuleOp) (string, error) {
	switch op {
	case OpEquals:
		return "equals", nil
	case OpNotEquals:
		return "not_equals", nil
	case OpContains:
		return "contains", nil
	case OpGreaterThan:
		return "gt", nil
	case OpLessThan:
		return "lt", nil
	case OpUnknown:
		return "", ErrRuleInvalid
	}
	return "", ErrRuleInvalid
}

func parseRuleOp(name string) (RuleOp, error) {
	switch name {
	case "equals":
		return OpEquals, nil
	case "not_equals":
		return OpNotEquals, nil
	case "contains":
		return OpContains, nil
	case "gt":
		return OpGreaterThan, nil
	case "lt":
		return OpLessThan, nil
	default:
		return OpUnknown, ErrRuleInvalid
	}
}
