package staffing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CustomData is the typed extension data carried by an order. It is only
// serialized by store implementations.
type CustomData struct {
	Adjustments       []Adjustment             `json:"adjustments,omitempty"`
	SettlementHistory []SettlementHistoryEntry `json:"settlementHistory,omitempty"`
	Fields            map[string]string        `json:"fields,omitempty"`
}

// ParseAdjustmentType validates a wire value.
func ParseAdjustmentType(s string) (AdjustmentType, error) {
	switch t := AdjustmentType(strings.ToUpper(strings.TrimSpace(s))); t {
	case AdjustmentOvertime, AdjustmentLeave, AdjustmentSubstitute:
		return t, nil
	}
	return "", fmt.Errorf("adjustment type must be one of OVERTIME, LEAVE, SUBSTITUTE, got %q", s)
}

// AdjustmentSum returns the signed day delta of all adjustments.
func (c CustomData) AdjustmentSum() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range c.Adjustments {
		sum = sum.Add(a.Value)
	}
	return sum
}

// SettlementFor returns the history entry for month, if any.
func (c CustomData) SettlementFor(month Month) (SettlementHistoryEntry, bool) {
	for _, h := range c.SettlementHistory {
		if h.Month == month {
			return h, true
		}
	}
	return SettlementHistoryEntry{}, false
}

// AppendAdjustment adds an entry to the append-only adjustment list.
func (c *CustomData) AppendAdjustment(a Adjustment) {
	c.Adjustments = append(c.Adjustments, a)
}

// AppendSettlement adds a history entry. At most one entry per month is
// kept; a second one returns ErrAlreadySettled.
func (c *CustomData) AppendSettlement(e SettlementHistoryEntry) error {
	if _, ok := c.SettlementFor(e.Month); ok {
		return &AlreadySettledError{Month: e.Month}
	}
	c.SettlementHistory = append(c.SettlementHistory, e)
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing stored data.
func (c CustomData) Clone() CustomData {
	out := CustomData{
		Adjustments:       append([]Adjustment(nil), c.Adjustments...),
		SettlementHistory: append([]SettlementHistoryEntry(nil), c.SettlementHistory...),
	}
	if c.Fields != nil {
		out.Fields = make(map[string]string, len(c.Fields))
		for k, v := range c.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
