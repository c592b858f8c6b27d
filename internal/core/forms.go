package core

// This file turns raw form values into validated inputs. Field names match the
// web client's form state (name/rate/percent, hours, amount, grossPay).

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ParsePercent parses a deduction percentage. Absent or non-numeric input is 0.
func ParsePercent(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseCompanyForm reads name, rate and percent.
func ParseCompanyForm(form url.Values) (CompanyInput, error) {
	in := CompanyInput{
		Name:             strings.TrimSpace(form.Get("name")),
		DeductionPercent: ParsePercent(form.Get("percent")),
	}
	if in.Name == "" {
		return CompanyInput{}, ErrEmptyName
	}
	rate, err := ParseMoney(form.Get("rate"))
	if err != nil {
		return CompanyInput{}, ErrInvalidRate
	}
	in.BaseRate = rate
	if err := in.Validate(); err != nil {
		return CompanyInput{}, err
	}
	return in, nil
}

// ParseWorkRecordForm reads companyId, hours and an optional rate override.
func ParseWorkRecordForm(form url.Values) (WorkRecordInput, error) {
	in := WorkRecordInput{
		CompanyID:   ID(strings.TrimSpace(form.Get("companyId"))),
		Date:        strings.TrimSpace(form.Get("date")),
		Description: strings.TrimSpace(form.Get("description")),
	}
	hours, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(form.Get("hours")), ",", "."), 64)
	if err != nil {
		return WorkRecordInput{}, ErrInvalidHours
	}
	in.Hours = hours
	if v := strings.TrimSpace(form.Get("rate")); v != "" {
		rate, err := ParseMoney(v)
		if err != nil {
			return WorkRecordInput{}, ErrInvalidAmount
		}
		in.Rate = &rate
	}
	if err := in.Validate(); err != nil {
		return WorkRecordInput{}, err
	}
	return in, nil
}

// ParseAmountForm reads amount, description and date for expenses and
// insurance items.
func ParseAmountForm(form url.Values) (AmountInput, error) {
	amount, err := ParseMoney(form.Get("amount"))
	if err != nil {
		return AmountInput{}, ErrInvalidAmount
	}
	in := AmountInput{
		Amount:      amount,
		Description: strings.TrimSpace(form.Get("description")),
		Date:        strings.TrimSpace(form.Get("date")),
	}
	if err := in.Validate(); err != nil {
		return AmountInput{}, err
	}
	return in, nil
}

// ParsePayrollForm reads an optional grossPay.
func ParsePayrollForm(form url.Values) (PayrollInput, error) {
	in := PayrollInput{
		Description: strings.TrimSpace(form.Get("description")),
		Date:        strings.TrimSpace(form.Get("date")),
	}
	if v := strings.TrimSpace(form.Get("grossPay")); v != "" {
		gross, err := ParseMoney(v)
		if err != nil {
			return PayrollInput{}, ErrInvalidAmount
		}
		in.GrossPay = &gross
	}
	if err := in.Validate(); err != nil {
		return PayrollInput{}, err
	}
	return in, nil
}
