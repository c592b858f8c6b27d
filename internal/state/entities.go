package state

import (
	"fmt"
	"slices"

	"worktracker/internal/core"
)

func companyID(c core.Company) core.ID { return c.ID }
func workRecordID(w core.WorkRecord) core.ID { return w.ID }
func expenseID(e core.Expense) core.ID { return e.ID }
func insuranceID(i core.InsuranceItem) core.ID { return i.ID }
func payrollID(p core.PayrollItem) core.ID { return p.ID }

func (s *Store) AddCompany(in core.CompanyInput) (core.Company, error) {
	if err := in.Validate(); err != nil {
		return core.Company{}, err
	}
	var out core.Company
	err := s.mutate(func(d *core.Snapshot) error {
		out = core.NewCompany(s.newID(), in)
		d.Companies = append(d.Companies, out)
		return nil
	})
	return out, err
}

// UpdateCompany replaces the mutable fields of a company, keeping its id and
// position. Existing work records keep the rate they were entered with.
func (s *Store) UpdateCompany(id core.ID, in core.CompanyInput) (core.Company, error) {
	if err := in.Validate(); err != nil {
		return core.Company{}, err
	}
	var out core.Company
	err := s.mutate(func(d *core.Snapshot) error {
		i := indexOf(d.Companies, id, companyID)
		if i < 0 {
			return fmt.Errorf("company %s: %w", id, core.ErrNotFound)
		}
		d.Companies[i].Apply(in)
		out = d.Companies[i]
		return nil
	})
	return out, err
}

// RemoveCompany deletes the company and every work record that references it
// in a single write.
func (s *Store) RemoveCompany(id core.ID) error {
	return s.mutate(func(d *core.Snapshot) error {
		companies, err := removeByID(d.Companies, id, companyID)
		if err != nil {
			return fmt.Errorf("company %s: %w", id, err)
		}
		d.Companies = companies
		d.WorkRecords = slices.DeleteFunc(d.WorkRecords, func(w core.WorkRecord) bool {
			return w.CompanyID == id
		})
		return nil
	})
}

// AddWorkRecord appends a record for an existing company. Without an explicit
// rate the company's current pay rate is copied onto the record.
func (s *Store) AddWorkRecord(in core.WorkRecordInput) (core.WorkRecord, error) {
	if err := in.Validate(); err != nil {
		return core.WorkRecord{}, err
	}
	var out core.WorkRecord
	err := s.mutate(func(d *core.Snapshot) error {
		ci := indexOf(d.Companies, in.CompanyID, companyID)
		if ci < 0 {
			return core.ErrUnknownCompany
		}
		out = core.WorkRecord{
			ID:          s.newID(),
			CompanyID:   in.CompanyID,
			Hours:       in.Hours,
			Rate:        d.Companies[ci].PayRate,
			Date:        in.Date,
			Description: in.Description,
		}
		if in.Rate != nil {
			out.Rate = *in.Rate
		}
		d.WorkRecords = append(d.WorkRecords, out)
		return nil
	})
	return out, err
}

// UpdateWorkRecord replaces a record's fields. A nil rate keeps the stored
// rate unless the record moves to another company, in which case that
// company's current pay rate is taken.
func (s *Store) UpdateWorkRecord(id core.ID, in core.WorkRecordInput) (core.WorkRecord, error) {
	if err := in.Validate(); err != nil {
		return core.WorkRecord{}, err
	}
	var out core.WorkRecord
	err := s.mutate(func(d *core.Snapshot) error {
		i := indexOf(d.WorkRecords, id, workRecordID)
		if i < 0 {
			return fmt.Errorf("work record %s: %w", id, core.ErrNotFound)
		}
		ci := indexOf(d.Companies, in.CompanyID, companyID)
		if ci < 0 {
			return core.ErrUnknownCompany
		}
		w := &d.WorkRecords[i]
		switch {
		case in.Rate != nil:
			w.Rate = *in.Rate
		case w.CompanyID != in.CompanyID:
			w.Rate = d.Companies[ci].PayRate
		}
		w.CompanyID = in.CompanyID
		w.Hours = in.Hours
		w.Date = in.Date
		w.Description = in.Description
		out = *w
		return nil
	})
	return out, err
}

func (s *Store) RemoveWorkRecord(id core.ID) error {
	return s.mutate(func(d *core.Snapshot) error {
		records, err := removeByID(d.WorkRecords, id, workRecordID)
		if err != nil {
			return fmt.Errorf("work record %s: %w", id, err)
		}
		d.WorkRecords = records
		return nil
	})
}

func (s *Store) AddExpense(in core.AmountInput) (core.Expense, error) {
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	var out core.Expense
	err := s.mutate(func(d *core.Snapshot) error {
		out = core.Expense{ID: s.newID(), Amount: in.Amount, Description: in.Description, Date: in.Date}
		d.Expenses = append(d.Expenses, out)
		return nil
	})
	return out, err
}

func (s *Store) RemoveExpense(id core.ID) error {
	return s.mutate(func(d *core.Snapshot) error {
		items, err := removeByID(d.Expenses, id, expenseID)
		if err != nil {
			return fmt.Errorf("expense %s: %w", id, err)
		}
		d.Expenses = items
		return nil
	})
}

func (s *Store) AddInsuranceItem(in core.AmountInput) (core.InsuranceItem, error) {
	if err := in.Validate(); err != nil {
		return core.InsuranceItem{}, err
	}
	var out core.InsuranceItem
	err := s.mutate(func(d *core.Snapshot) error {
		out = core.InsuranceItem{ID: s.newID(), Amount: in.Amount, Description: in.Description, Date: in.Date}
		d.Insurance = append(d.Insurance, out)
		return nil
	})
	return out, err
}

func (s *Store) RemoveInsuranceItem(id core.ID) error {
	return s.mutate(func(d *core.Snapshot) error {
		items, err := removeByID(d.Insurance, id, insuranceID)
		if err != nil {
			return fmt.Errorf("insurance item %s: %w", id, err)
		}
		d.Insurance = items
		return nil
	})
}

func (s *Store) AddPayrollItem(in core.PayrollInput) (core.PayrollItem, error) {
	if err := in.Validate(); err != nil {
		return core.PayrollItem{}, err
	}
	var out core.PayrollItem
	err := s.mutate(func(d *core.Snapshot) error {
		out = core.PayrollItem{ID: s.newID(), Description: in.Description, Date: in.Date}
		if in.GrossPay != nil {
			g := *in.GrossPay
			out.GrossPay = &g
		}
		d.Payroll = append(d.Payroll, out)
		return nil
	})
	if out.GrossPay != nil {
		g := *out.GrossPay
		out.GrossPay = &g
	}
	return out, err
}

func (s *Store) RemovePayrollItem(id core.ID) error {
	return s.mutate(func(d *core.Snapshot) error {
		items, err := removeByID(d.Payroll, id, payrollID)
		if err != nil {
			return fmt.Errorf("payroll item %s: %w", id, err)
		}
		d.Payroll = items
		return nil
	})
}
