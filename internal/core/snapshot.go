package core

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the complete set of collections for one user. Its JSON form is
// the persisted document.
type Snapshot struct {
	Companies   []Company       `json:"companies"`
	WorkRecords []WorkRecord    `json:"workRecords"`
	Expenses    []Expense       `json:"expenses"`
	Insurance   []InsuranceItem `json:"insurance"`
	Payroll     []PayrollItem   `json:"payroll"`
}

// EmptySnapshot returns a snapshot whose collections are empty but non-nil.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Companies:   []Company{},
		WorkRecords: []WorkRecord{},
		Expenses:    []Expense{},
		Insurance:   []InsuranceItem{},
		Payroll:     []PayrollItem{},
	}
}

// Normalize replaces nil collections with empty ones and re-derives every
// company's pay rate from its inputs.
func (s Snapshot) Normalize() Snapshot {
	out := s.Clone()
	for i := range out.Companies {
		c := &out.Companies[i]
		c.PayRate = EffectivePayRate(c.BaseRate, c.DeductionPercent)
	}
	return out
}

// Clone returns a deep copy with non-nil collections.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Companies:   append(make([]Company, 0, len(s.Companies)), s.Companies...),
		WorkRecords: append(make([]WorkRecord, 0, len(s.WorkRecords)), s.WorkRecords...),
		Expenses:    append(make([]Expense, 0, len(s.Expenses)), s.Expenses...),
		Insurance:   append(make([]InsuranceItem, 0, len(s.Insurance)), s.Insurance...),
		Payroll:     make([]PayrollItem, len(s.Payroll)),
	}
	for i, p := range s.Payroll {
		if p.GrossPay != nil {
			g := *p.GrossPay
			p.GrossPay = &g
		}
		out.Payroll[i] = p
	}
	return out
}

// Len is the total number of entities across all collections.
func (s Snapshot) Len() int {
	return len(s.Companies) + len(s.WorkRecords) + len(s.Expenses) + len(s.Insurance) + len(s.Payroll)
}

// Validate checks every entity plus id uniqueness and work record references.
// It is used for imported documents; hydrated documents are trusted.
func (s Snapshot) Validate() error {
	companies := make(map[ID]struct{}, len(s.Companies))
	for i, c := range s.Companies {
		if err := c.Input().Validate(); err != nil {
			return fmt.Errorf("companies[%d]: %w", i, err)
		}
		if _, dup := companies[c.ID]; dup || c.ID == "" {
			return fmt.Errorf("companies[%d] id %q: %w", i, c.ID, ErrDuplicateID)
		}
		companies[c.ID] = struct{}{}
	}

	seen := map[ID]struct{}{}
	for i, w := range s.WorkRecords {
		rate := w.Rate
		in := WorkRecordInput{CompanyID: w.CompanyID, Hours: w.Hours, Rate: &rate}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("workRecords[%d]: %w", i, err)
		}
		if _, ok := companies[w.CompanyID]; !ok {
			return fmt.Errorf("workRecords[%d]: %w", i, ErrUnknownCompany)
		}
		if err := checkUnique(seen, w.ID); err != nil {
			return fmt.Errorf("workRecords[%d]: %w", i, err)
		}
	}

	seen = map[ID]struct{}{}
	for i, e := range s.Expenses {
		if err := (AmountInput{Amount: e.Amount}).Validate(); err != nil {
			return fmt.Errorf("expenses[%d]: %w", i, err)
		}
		if err := checkUnique(seen, e.ID); err != nil {
			return fmt.Errorf("expenses[%d]: %w", i, err)
		}
	}

	seen = map[ID]struct{}{}
	for i, it := range s.Insurance {
		if err := (AmountInput{Amount: it.Amount}).Validate(); err != nil {
			return fmt.Errorf("insurance[%d]: %w", i, err)
		}
		if err := checkUnique(seen, it.ID); err != nil {
			return fmt.Errorf("insurance[%d]: %w", i, err)
		}
	}

	seen = map[ID]struct{}{}
	for i, p := range s.Payroll {
		if err := (PayrollInput{GrossPay: p.GrossPay}).Validate(); err != nil {
			return fmt.Errorf("payroll[%d]: %w", i, err)
		}
		if err := checkUnique(seen, p.ID); err != nil {
			return fmt.Errorf("payroll[%d]: %w", i, err)
		}
	}
	return nil
}

func checkUnique(seen map[ID]struct{}, id ID) error {
	if _, dup := seen[id]; dup || id == "" {
		return fmt.Errorf("id %q: %w", id, ErrDuplicateID)
	}
	seen[id] = struct{}{}
	return nil
}

// EncodeSnapshot produces the document bytes. Output is deterministic for a
// given snapshot, so writing the same snapshot twice stores identical bytes.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(s.Normalize())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot parses document bytes. Missing or null collections decode as
// empty.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s.Normalize(), nil
}
