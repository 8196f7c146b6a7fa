package models

import (
	"strings"
	"time"
)

// Flow classifies a ledger movement.
type Flow string

const (
	FlowIncome  Flow = "income"
	FlowExpense Flow = "expense"
)

// LedgerEntry is implemented by records that move money.
type LedgerEntry interface {
	Ledger() (time.Time, float64, Flow)
}

func flowFromType(kind string) Flow {
	if strings.EqualFold(strings.TrimSpace(kind), string(FlowIncome)) {
		return FlowIncome
	}
	return FlowExpense
}

func (m *MachineFinance) Ledger() (time.Time, float64, Flow) {
	return m.Date.Time, m.Amount, flowFromType(m.Type)
}

func (a *AnimalFinance) Ledger() (time.Time, float64, Flow) {
	return a.Date.Time, a.Amount, flowFromType(a.Type)
}

func (p *PastureFinance) Ledger() (time.Time, float64, Flow) {
	return p.Date.Time, p.Amount, flowFromType(p.Type)
}

func (m *Maintenance) Ledger() (time.Time, float64, Flow) {
	return m.Date.Time, m.Cost, FlowExpense
}

func (a *AnimalVeterinary) Ledger() (time.Time, float64, Flow) {
	return a.Date.Time, a.Cost, FlowExpense
}

func (i *Investment) Ledger() (time.Time, float64, Flow) {
	return i.Date.Time, i.Amount, FlowExpense
}

func (s *Service) Ledger() (time.Time, float64, Flow) {
	return s.Date.Time, s.Amount, FlowExpense
}

// Ledger books a tax on its payment date, or its due date while unpaid.
func (t *Tax) Ledger() (time.Time, float64, Flow) {
	if !t.PaidDate.IsZero() {
		return t.PaidDate.Time, t.Amount, FlowExpense
	}
	return t.DueDate.Time, t.Amount, FlowExpense
}

func (r *Repair) Ledger() (time.Time, float64, Flow) {
	return r.Date.Time, r.Amount, FlowExpense
}

func (s *Salary) Ledger() (time.Time, float64, Flow) {
	return s.PaymentDate.Time, s.Amount, FlowExpense
}

func (c *Capital) Ledger() (time.Time, float64, Flow) {
	return c.Date.Time, c.Amount, FlowIncome
}
