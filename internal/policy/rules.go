package policy

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"lpgateway/internal/config"
	"lpgateway/internal/fault"
)

// Operator compares a transaction field against a condition value.
type Operator string

const (
	OpEq  Operator = "eq"
	OpIn  Operator = "in"
	OpLte Operator = "lte"
	OpGte Operator = "gte"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
)

// Action is what a rule does when all of its conditions hold.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
)

const (
	MethodSendTransaction = "eth_sendTransaction"
	FieldSourceTx         = "ethereum_transaction"
	ChainTypeEthereum     = "ethereum"
	policyVersion         = "1.0"
)

// Condition is one tagged comparison. Value is a string or a list of strings.
type Condition struct {
	FieldSource string      `json:"field_source"`
	Field       string      `json:"field"`
	Operator    Operator    `json:"operator"`
	Value       interface{} `json:"value"`
}

// Rule groups AND-ed conditions under one action for one method.
type Rule struct {
	Name       string      `json:"name"`
	Method     string      `json:"method"`
	Action     Action      `json:"action"`
	Conditions []Condition `json:"conditions"`
}

// Policy is a named, versioned, owner-scoped rule set.
type Policy struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	ChainType string `json:"chain_type"`
	OwnerID   string `json:"owner_id"`
	Rules     []Rule `json:"rules"`
}

// ExpectedPolicy composes the policy this service requires: sends are allowed only on the supported
// chains, only to the liquidity contracts, and only up to ceiling wei of native value.
func ExpectedPolicy(registry *config.ChainRegistry, ceiling *big.Int, name, owner string) (Policy, error) {
	if registry == nil || len(registry.IDs()) == 0 {
		return Policy{}, fmt.Errorf("no supported chains")
	}
	if ceiling == nil || ceiling.Sign() < 0 {
		return Policy{}, fmt.Errorf("value ceiling must be non-negative")
	}
	if owner == "" {
		return Policy{}, fmt.Errorf("policy owner is required")
	}

	ids := registry.IDs()
	chainIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		chainIDs = append(chainIDs, strconv.FormatUint(id, 10))
	}
	contracts := registry.AllowedContracts()
	targets := make([]string, 0, len(contracts))
	for _, addr := range contracts {
		targets = append(targets, strings.ToLower(addr.Hex()))
	}

	return Policy{
		Name:      name,
		Version:   policyVersion,
		ChainType: ChainTypeEthereum,
		OwnerID:   owner,
		Rules: []Rule{{
			Name:   "allow liquidity contracts",
			Method: MethodSendTransaction,
			Action: ActionAllow,
			Conditions: []Condition{
				{FieldSource: FieldSourceTx, Field: "chain_id", Operator: OpIn, Value: chainIDs},
				{FieldSource: FieldSourceTx, Field: "to", Operator: OpIn, Value: targets},
				{FieldSource: FieldSourceTx, Field: "value", Operator: OpLte, Value: ceiling.String()},
			},
		}},
	}, nil
}

// Validate checks a remote policy against the expected one. Owner and rule shape must match
// exactly; any difference is a policy integrity failure.
func Validate(expected, actual Policy) error {
	const op = "validate policy"
	if actual.OwnerID != expected.OwnerID {
		return fault.PolicyIntegrity(op, "policy %s owner %q does not match signer %q", actual.ID, actual.OwnerID, expected.OwnerID)
	}
	if len(actual.Rules) != len(expected.Rules) {
		return fault.PolicyIntegrity(op, "policy %s has %d rules, expected %d", actual.ID, len(actual.Rules), len(expected.Rules))
	}
	for i, want := range expected.Rules {
		got := actual.Rules[i]
		if got.Method != want.Method || got.Action != want.Action {
			return fault.PolicyIntegrity(op, "policy %s rule %d is %s %s, expected %s %s",
				actual.ID, i, got.Action, got.Method, want.Action, want.Method)
		}
		if len(got.Conditions) != len(want.Conditions) {
			return fault.PolicyIntegrity(op, "policy %s rule %d has %d conditions, expected %d",
				actual.ID, i, len(got.Conditions), len(want.Conditions))
		}
	}
	return nil
}

// fingerprint renders the rule set in a canonical form for logging drift.
func fingerprint(p Policy) string {
	var parts []string
	for _, r := range p.Rules {
		for _, c := range r.Conditions {
			parts = append(parts, fmt.Sprintf("%s:%s:%s:%s", r.Action, c.Field, c.Operator, conditionValue(c.Value)))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func conditionValue(v interface{}) string {
	switch typed := v.(type) {
	case []string:
		vals := append([]string(nil), typed...)
		sort.Strings(vals)
		return strings.Join(vals, ",")
	case []interface{}:
		vals := make([]string, 0, len(typed))
		for _, item := range typed {
			vals = append(vals, strings.ToLower(fmt.Sprintf("%v", item)))
		}
		sort.Strings(vals)
		return strings.Join(vals, ",")
	default:
		return fmt.Sprintf("%v", typed)
	}
}
