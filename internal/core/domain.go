package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

type (
	// ID identifies an entity within its collection. Documents written by the
	// legacy web client carry numeric ids; those decode to their decimal text.
	ID string

	// Identity is the signed-in user as seen by the core. Only ID is load-bearing;
	// Name and AvatarURL are carried for rendering.
	Identity struct {
		ID        string
		Name      string
		AvatarURL string
	}

	Company struct {
		ID               ID      `json:"id"`
		Name             string  `json:"name"`
		BaseRate         Money   `json:"baseRate"`
		DeductionPercent float64 `json:"deductionPercent"`
		PayRate          Money   `json:"payRate"` // derived, see EffectivePayRate
	}

	CompanyInput struct {
		Name             string
		BaseRate         Money
		DeductionPercent float64
	}

	WorkRecord struct {
		ID          ID      `json:"id"`
		CompanyID   ID      `json:"companyId"`
		Hours       float64 `json:"hours"`
		Rate        Money   `json:"rate"` // payRate snapshot taken at entry time
		Date        string  `json:"date,omitempty"`
		Description string  `json:"description,omitempty"`
	}

	WorkRecordInput struct {
		CompanyID   ID
		Hours       float64
		Rate        *Money // nil means "use the company's current payRate"
		Date        string
		Description string
	}

	Expense struct {
		ID          ID     `json:"id"`
		Amount      Money  `json:"amount"`
		Description string `json:"description,omitempty"`
		Date        string `json:"date,omitempty"`
	}

	InsuranceItem struct {
		ID          ID     `json:"id"`
		Amount      Money  `json:"amount"`
		Description string `json:"description,omitempty"`
		Date        string `json:"date,omitempty"`
	}

	PayrollItem struct {
		ID          ID     `json:"id"`
		GrossPay    *Money `json:"grossPay,omitempty"`
		Description string `json:"description,omitempty"`
		Date        string `json:"date,omitempty"`
	}

	// AmountInput is shared by expenses and insurance items.
	AmountInput struct {
		Amount      Money
		Description string
		Date        string
	}

	PayrollInput struct {
		GrossPay    *Money
		Description string
		Date        string
	}
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrRemoteUnavailable = errors.New("remote unavailable")

	ErrEmptyName      = fmt.Errorf("%w: empty company name", ErrValidation)
	ErrInvalidRate    = fmt.Errorf("%w: base rate must be a positive number", ErrValidation)
	ErrInvalidPercent = fmt.Errorf("%w: deduction percent must be between 0 and 100", ErrValidation)
	ErrInvalidHours   = fmt.Errorf("%w: hours must be between 0 and 1000000", ErrValidation)
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be zero or more", ErrValidation)
	ErrUnknownCompany = fmt.Errorf("%w: work record references unknown company", ErrValidation)
	ErrDuplicateID    = fmt.Errorf("%w: duplicate id", ErrValidation)
)

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON accepts both strings and numbers.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Key returns the document key for the identity, or "" when absent.
func (i *Identity) Key() string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.ID)
}

// DisplayName falls back to "User" like the sign-in badge does.
func (i *Identity) DisplayName() string {
	if i == nil || strings.TrimSpace(i.Name) == "" {
		return "User"
	}
	return i.Name
}

func (in CompanyInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if in.BaseRate.Cents <= 0 {
		return ErrInvalidRate
	}
	if math.IsNaN(in.DeductionPercent) || in.DeductionPercent < 0 || in.DeductionPercent > 100 {
		return ErrInvalidPercent
	}
	return nil
}

// NewCompany builds a company from validated input. PayRate is always derived.
func NewCompany(id ID, in CompanyInput) Company {
	c := Company{ID: id}
	c.Apply(in)
	return c
}

// Apply replaces every mutable field and recomputes PayRate. The id is untouched.
func (c *Company) Apply(in CompanyInput) {
	c.Name = strings.TrimSpace(in.Name)
	c.BaseRate = in.BaseRate
	c.DeductionPercent = in.DeductionPercent
	c.PayRate = EffectivePayRate(c.BaseRate, c.DeductionPercent)
}

func (c Company) Input() CompanyInput {
	return CompanyInput{Name: c.Name, BaseRate: c.BaseRate, DeductionPercent: c.DeductionPercent}
}

// MaxHours bounds a single work record.
const MaxHours = 1_000_000

func validHours(h float64) bool {
	return !math.IsNaN(h) && h >= 0 && h <= MaxHours
}

func (in WorkRecordInput) Validate() error {
	if strings.TrimSpace(string(in.CompanyID)) == "" {
		return ErrUnknownCompany
	}
	if !validHours(in.Hours) {
		return ErrInvalidHours
	}
	if in.Rate != nil && in.Rate.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (in AmountInput) Validate() error {
	if in.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (in PayrollInput) Validate() error {
	if in.GrossPay != nil && in.GrossPay.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Earnings is hours times the rate stored on the record.
func (w WorkRecord) Earnings() Money {
	return w.Rate.MulRound(w.Hours)
}

// Gross returns the gross pay, treating an absent value as zero.
func (p PayrollItem) Gross() Money {
	if p.GrossPay == nil {
		return Money{}
	}
	return *p.GrossPay
}
