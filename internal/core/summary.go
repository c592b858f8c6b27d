package core

// CompanyTotal is the work income attributed to one company.
type CompanyTotal struct {
	CompanyID ID
	Name      string
	Hours     float64
	Earnings  Money
}

// Totals is the consolidated financial summary.
type Totals struct {
	WorkIncome Money
	Expenses   Money
	Insurance  Money
	Payroll    Money
	Net        Money
	ByCompany  []CompanyTotal
}

// EffectivePayRate is base minus base*pct/100, with the deduction rounded to
// whole cents. A 100% deduction yields zero.
func EffectivePayRate(base Money, deductionPercent float64) Money {
	return base.Sub(base.MulRound(deductionPercent / 100))
}

// CompanyEarnings sums hours*rate over the company's records, using the rate
// stored on each record so later rate edits do not rewrite history.
func CompanyEarnings(company Company, records []WorkRecord) Money {
	var total Money
	for _, r := range records {
		if r.CompanyID != company.ID {
			continue
		}
		total = total.Add(r.Earnings())
	}
	return total
}

// GrandTotals rolls every collection into one signed figure.
func GrandTotals(s Snapshot) Totals {
	t := Totals{ByCompany: make([]CompanyTotal, 0, len(s.Companies))}

	for _, c := range s.Companies {
		ct := CompanyTotal{CompanyID: c.ID, Name: c.Name, Earnings: CompanyEarnings(c, s.WorkRecords)}
		for _, r := range s.WorkRecords {
			if r.CompanyID == c.ID {
				ct.Hours += r.Hours
			}
		}
		t.ByCompany = append(t.ByCompany, ct)
		t.WorkIncome = t.WorkIncome.Add(ct.Earnings)
	}
	for _, e := range s.Expenses {
		t.Expenses = t.Expenses.Add(e.Amount)
	}
	for _, i := range s.Insurance {
		t.Insurance = t.Insurance.Add(i.Amount)
	}
	for _, p := range s.Payroll {
		t.Payroll = t.Payroll.Add(p.Gross())
	}

	t.Net = t.WorkIncome.Sub(t.Expenses).Sub(t.Insurance).Sub(t.Payroll)
	return t
}
