package state

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"worktracker/internal/core"
)

func newTestStore() *Store {
	s := New()
	n := 0
	s.newID = func() core.ID {
		n++
		return core.ID(fmt.Sprintf("id-%d", n))
	}
	return s
}

func mustCompany(t *testing.T, s *Store, name string, cents int64, pct float64) core.Company {
	t.Helper()
	c, err := s.AddCompany(core.CompanyInput{Name: name, BaseRate: core.Money{Cents: cents}, DeductionPercent: pct})
	if err != nil {
		t.Fatalf("add company %s: %v", name, err)
	}
	return c
}

func mustRecord(t *testing.T, s *Store, company core.ID, hours float64) core.WorkRecord {
	t.Helper()
	w, err := s.AddWorkRecord(core.WorkRecordInput{CompanyID: company, Hours: hours})
	if err != nil {
		t.Fatalf("add work record: %v", err)
	}
	return w
}

func TestAddCompanyDerivesPayRate(t *testing.T) {
	s := newTestStore()
	c := mustCompany(t, s, "Acme", 5000, 10)
	if c.ID == "" || c.PayRate.Cents != 4500 {
		t.Fatalf("unexpected company: %+v", c)
	}
	if _, err := s.AddCompany(core.CompanyInput{Name: "", BaseRate: core.Money{Cents: 1}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := len(s.Snapshot().Companies); got != 1 {
		t.Fatalf("rejected input must not be stored, have %d companies", got)
	}
}

func TestUpdateCompanyKeepsIDAndPosition(t *testing.T) {
	s := newTestStore()
	a := mustCompany(t, s, "A", 1000, 0)
	b := mustCompany(t, s, "B", 2000, 0)
	w := mustRecord(t, s, a.ID, 2)

	got, err := s.UpdateCompany(a.ID, core.CompanyInput{Name: "A2", BaseRate: core.Money{Cents: 6000}, DeductionPercent: 50})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != a.ID || got.PayRate.Cents != 3000 {
		t.Fatalf("unexpected update result: %+v", got)
	}
	snap := s.Snapshot()
	if snap.Companies[0].ID != a.ID || snap.Companies[1].ID != b.ID {
		t.Fatalf("order changed: %+v", snap.Companies)
	}
	if snap.WorkRecords[0].ID != w.ID || snap.WorkRecords[0].Rate.Cents != 1000 {
		t.Fatalf("work record rate should not follow company edits: %+v", snap.WorkRecords[0])
	}

	if _, err := s.UpdateCompany("missing", core.CompanyInput{Name: "x", BaseRate: core.Money{Cents: 1}}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveCompanyCascades(t *testing.T) {
	s := newTestStore()
	a := mustCompany(t, s, "A", 1000, 0)
	b := mustCompany(t, s, "B", 1000, 0)
	mustRecord(t, s, a.ID, 1)
	mustRecord(t, s, a.ID, 2)
	keep := mustRecord(t, s, b.ID, 3)
	exp, _ := s.AddExpense(core.AmountInput{Amount: core.Money{Cents: 100}})

	if err := s.RemoveCompany(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Companies) != 1 || snap.Companies[0].ID != b.ID {
		t.Fatalf("unexpected companies: %+v", snap.Companies)
	}
	if len(snap.WorkRecords) != 1 || snap.WorkRecords[0].ID != keep.ID {
		t.Fatalf("expected only the B record to remain, got %+v", snap.WorkRecords)
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].ID != exp.ID {
		t.Fatalf("cascade touched unrelated collections: %+v", snap.Expenses)
	}

	if err := s.RemoveCompany(a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second remove: expected ErrNotFound, got %v", err)
	}
}

func TestRemoveCompanyIsOneChange(t *testing.T) {
	s := newTestStore()
	a := mustCompany(t, s, "A", 1000, 0)
	mustRecord(t, s, a.ID, 1)

	var changes []Change
	unsub := s.Subscribe(func(c Change) { changes = append(changes, c) })
	defer unsub()

	if err := s.RemoveCompany(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %d", len(changes))
	}
	if got := changes[0].Snapshot; len(got.Companies) != 0 || len(got.WorkRecords) != 0 {
		t.Fatalf("observer saw a partial cascade: %+v", got)
	}
}

func TestAddWorkRecord(t *testing.T) {
	s := newTestStore()
	a := mustCompany(t, s, "Acme", 5000, 10)

	w := mustRecord(t, s, a.ID, 10)
	if w.Rate.Cents != 4500 || w.Earnings().Cents != 45000 {
		t.Fatalf("rate should be the company's pay rate: %+v", w)
	}

	override := core.Money{Cents: 4000}
	w2, err := s.AddWorkRecord(core.WorkRecordInput{CompanyID: a.ID, Hours: 1, Rate: &override})
	if err != nil || w2.Rate.Cents != 4000 {
		t.Fatalf("rate override ignored: %+v err=%v", w2, err)
	}

	if _, err := s.AddWorkRecord(core.WorkRecordInput{CompanyID: "ghost", Hours: 1}); !errors.Is(err, core.ErrUnknownCompany) {
		t.Fatalf("expected ErrUnknownCompany, got %v", err)
	}
}

func TestUpdateWorkRecord(t *testing.T) {
	s := newTestStore()
	a := mustCompany(t, s, "A", 1000, 0)
	b := mustCompany(t, s, "B", 2000, 0)
	w := mustRecord(t, s, a.ID, 1)

	got, err := s.UpdateWorkRecord(w.ID, core.WorkRecordInput{CompanyID: a.ID, Hours: 4, Description: "x"})
	if err != nil || got.Rate.Cents != 1000 || got.Hours != 4 || got.Description != "x" {
		t.Fatalf("same company update: %+v err=%v", got, err)
	}
	got, err = s.UpdateWorkRecord(w.ID, core.WorkRecordInput{CompanyID: b.ID, Hours: 4})
	if err != nil || got.Rate.Cents != 2000 {
		t.Fatalf("moving company should take its pay rate: %+v err=%v", got, err)
	}
	if _, err := s.UpdateWorkRecord("nope", core.WorkRecordInput{CompanyID: a.ID}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.RemoveWorkRecord(w.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveWorkRecord(w.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIndependentCollections(t *testing.T) {
	s := newTestStore()
	e, err := s.AddExpense(core.AmountInput{Amount: core.Money{Cents: 5000}, Description: "fuel"})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	i, err := s.AddInsuranceItem(core.AmountInput{Amount: core.Money{Cents: 2000}})
	if err != nil {
		t.Fatalf("add insurance: %v", err)
	}
	gross := core.Money{Cents: 100}
	p, err := s.AddPayrollItem(core.PayrollInput{GrossPay: &gross})
	if err != nil {
		t.Fatalf("add payroll: %v", err)
	}
	*p.GrossPay = core.Money{Cents: 999}
	if s.Snapshot().Payroll[0].GrossPay.Cents != 100 {
		t.Fatalf("returned payroll item aliases store memory")
	}

	if _, err := s.AddExpense(core.AmountInput{Amount: core.Money{Cents: -1}}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	for name, remove := range map[string]func() error{
		"expense":   func() error { return s.RemoveExpense(e.ID) },
		"insurance": func() error { return s.RemoveInsuranceItem(i.ID) },
		"payroll":   func() error { return s.RemovePayrollItem(p.ID) },
	} {
		if err := remove(); err != nil {
			t.Fatalf("remove %s: %v", name, err)
		}
		if err := remove(); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("remove %s twice: expected ErrNotFound, got %v", name, err)
		}
	}
	if s.Snapshot().Len() != 0 {
		t.Fatalf("expected empty store, got %+v", s.Snapshot())
	}
}

func TestLockRejectsMutations(t *testing.T) {
	s := newTestStore()
	s.Lock()
	if !s.Locked() {
		t.Fatalf("Locked() = false after Lock")
	}
	if _, err := s.AddExpense(core.AmountInput{Amount: core.Money{Cents: 1}}); !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("expected ErrStoreLocked, got %v", err)
	}
	if err := s.Restore(core.EmptySnapshot()); !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("restore while locked: expected ErrStoreLocked, got %v", err)
	}

	snap := core.EmptySnapshot()
	snap.Expenses = append(snap.Expenses, core.Expense{ID: "e1", Amount: core.Money{Cents: 1}})
	s.ReplaceAll(snap)
	if len(s.Snapshot().Expenses) != 1 {
		t.Fatalf("ReplaceAll must bypass the gate")
	}

	s.Unlock()
	if s.Locked() {
		t.Fatalf("Locked() = true after Unlock")
	}
	if _, err := s.AddExpense(core.AmountInput{Amount: core.Money{Cents: 1}}); err != nil {
		t.Fatalf("unexpected error after unlock: %v", err)
	}
}

func TestReplaceAllDefaultsMissingCollections(t *testing.T) {
	s := newTestStore()
	mustCompany(t, s, "A", 1000, 0)

	var kinds []ChangeKind
	s.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })

	s.ReplaceAll(core.Snapshot{Expenses: []core.Expense{{ID: "e", Amount: core.Money{Cents: 5}}}})
	snap := s.Snapshot()
	if snap.Companies == nil || snap.WorkRecords == nil || snap.Insurance == nil || snap.Payroll == nil {
		t.Fatalf("missing collections must be empty, not nil: %+v", snap)
	}
	if len(snap.Companies) != 0 || len(snap.Expenses) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(kinds) != 1 || kinds[0] != ChangeReplace {
		t.Fatalf("expected a single replace change, got %v", kinds)
	}
}

func TestRestoreValidates(t *testing.T) {
	s := newTestStore()
	bad := core.EmptySnapshot()
	bad.WorkRecords = []core.WorkRecord{{ID: "w", CompanyID: "ghost"}}
	if err := s.Restore(bad); !errors.Is(err, core.ErrUnknownCompany) {
		t.Fatalf("expected ErrUnknownCompany, got %v", err)
	}

	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })
	good := core.EmptySnapshot()
	good.Companies = []core.Company{core.NewCompany("c", core.CompanyInput{Name: "C", BaseRate: core.Money{Cents: 100}})}
	if err := s.Restore(good); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(got) != 1 || got[0].Kind != ChangeMutation {
		t.Fatalf("restore should emit one mutation, got %+v", got)
	}
}

func TestSubscribeRevisionAndUnsubscribe(t *testing.T) {
	s := newTestStore()
	var revs []uint64
	unsub := s.Subscribe(func(c Change) { revs = append(revs, c.Revision) })

	mustCompany(t, s, "A", 100, 0)
	s.AddExpense(core.AmountInput{Amount: core.Money{Cents: 1}})
	if s.Revision() != 2 || len(revs) != 2 || revs[0] != 1 || revs[1] != 2 {
		t.Fatalf("unexpected revisions: store=%d seen=%v", s.Revision(), revs)
	}

	if _, err := s.AddCompany(core.CompanyInput{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if s.Revision() != 2 {
		t.Fatalf("failed mutation bumped revision to %d", s.Revision())
	}

	unsub()
	unsub()
	mustCompany(t, s, "B", 100, 0)
	if len(revs) != 2 {
		t.Fatalf("listener called after unsubscribe")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore()
	mustCompany(t, s, "A", 100, 0)
	snap := s.Snapshot()
	snap.Companies[0].Name = "mutated"
	if s.Snapshot().Companies[0].Name != "A" {
		t.Fatalf("snapshot aliases store memory")
	}
}

func TestConcurrentMutations(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := s.AddExpense(core.AmountInput{Amount: core.Money{Cents: 1}}); err != nil {
					t.Errorf("add: %v", err)
					return
				}
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if len(snap.Expenses) != 500 || s.Revision() != 500 {
		t.Fatalf("lost writes: %d expenses, revision %d", len(snap.Expenses), s.Revision())
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("ids should be unique: %v", err)
	}
}
