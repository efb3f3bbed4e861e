// Package catalog builds an in-memory, time-bounded view of condition
// definitions: outcome-token identifiers derived once per condition and
// cached, plus the payout ratio vector once resolved.
package catalog

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/tokenid"
)

// Catalog is the Condition Catalog: an in-memory view of market
// definitions loaded once per replay, presenting conditions resolved
// after the replay's end-time bound as unresolved.
type Catalog struct {
	conditions     map[string]domain.Condition
	tokens         map[string][]string // conditionID -> outcome-token IDs ordered by index
	byToken        map[string]tokenLocation
	questionCounts map[string]int // neg-risk market ID (hex) -> question count
	endTs          int64
}

type tokenLocation struct {
	conditionID string
	index       int
}

// New builds a Catalog from the full condition list, deriving outcome
// tokens for each and applying the end-time bound: a condition resolved
// after endTs (or endTs == 0, meaning unbounded) is presented as
// unresolved. questionCounts is the neg-risk question-count table
// (market ID -> question count), the authority handleAdapterConversion's
// reconstruction path consults ahead of an event's own carried count.
func New(conditions []domain.Condition, questionCounts map[string]int, endTs int64) *Catalog {
	c := &Catalog{
		conditions:     make(map[string]domain.Condition, len(conditions)),
		tokens:         make(map[string][]string, len(conditions)),
		byToken:        make(map[string]tokenLocation),
		questionCounts: make(map[string]int, len(questionCounts)),
		endTs:          endTs,
	}
	for marketID, n := range questionCounts {
		c.questionCounts[common.HexToHash(marketID).Hex()] = n
	}
	for _, cond := range conditions {
		bounded := cond
		if endTs > 0 && cond.ResolvedAt > endTs {
			bounded.ResolvedAt = 0
			bounded.Payout = domain.Payout{}
		}
		c.conditions[cond.ConditionID] = bounded

		derived := tokenid.DeriveAll(cond.ParentCollectionID, conditionIDBytes(cond.ConditionID), cond.OutcomeSlotCount, common.HexToAddress(cond.CollateralToken))
		ids := make([]string, len(derived))
		for i, t := range derived {
			id := t.Hex()
			ids[i] = id
			c.byToken[id] = tokenLocation{conditionID: cond.ConditionID, index: i}
		}
		c.tokens[cond.ConditionID] = ids
	}
	return c
}

func conditionIDBytes(hexID string) [32]byte {
	return common.HexToHash(hexID)
}

// Condition returns the (possibly time-bounded) condition, if loaded.
func (c *Catalog) Condition(conditionID string) (domain.Condition, bool) {
	cond, ok := c.conditions[conditionID]
	return cond, ok
}

// OutcomeToken returns the outcome-token identifier for
// (conditionID, index), if the condition is loaded and index is valid.
func (c *Catalog) OutcomeToken(conditionID string, index int) (string, bool) {
	ids, ok := c.tokens[conditionID]
	if !ok || index < 0 || index >= len(ids) {
		return "", false
	}
	return ids[index], true
}

// OutcomeTokens returns the full ordered tuple of outcome-token
// identifiers for a condition.
func (c *Catalog) OutcomeTokens(conditionID string) []string {
	return c.tokens[conditionID]
}

// Locate resolves a token ID back to its owning condition and outcome
// index, used when reconstructing burns/mints without the condition ID
// in hand (e.g. bare ERC-1155 legs).
func (c *Catalog) Locate(tokenID string) (conditionID string, index int, ok bool) {
	loc, ok := c.byToken[tokenID]
	return loc.conditionID, loc.index, ok
}

// PayoutRatio returns payout_numerator/payout_denominator for a
// condition's outcome index; 0 if unresolved, unknown, or the
// denominator is zero (spec.md §4.2).
func (c *Catalog) PayoutRatio(conditionID string, index int) float64 {
	cond, ok := c.conditions[conditionID]
	if !ok {
		return 0
	}
	return cond.Payout.Ratio(index)
}

// IsResolved reports whether the catalog presents conditionID as
// resolved under this catalog's end-time bound.
func (c *Catalog) IsResolved(conditionID string) bool {
	cond, ok := c.conditions[conditionID]
	return ok && cond.IsResolved()
}

// QuestionCount returns the neg-risk question-count table's entry for
// marketID (hex-encoded, any casing), if loaded.
func (c *Catalog) QuestionCount(marketID string) (int, bool) {
	n, ok := c.questionCounts[common.HexToHash(marketID).Hex()]
	return n, ok
}

// ResolvedConditions returns every condition this catalog presents as
// resolved, used by the Unified Event Stream to inject synthetic
// resolution events.
func (c *Catalog) ResolvedConditions() []domain.Condition {
	var out []domain.Condition
	for _, cond := range c.conditions {
		if cond.IsResolved() {
			out = append(out, cond)
		}
	}
	return out
}
