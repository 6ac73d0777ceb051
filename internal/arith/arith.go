// Package arith holds a tiny calculator pipeline, it exercises every feature of
// package chain with steps that are easy to reason about.
package arith

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/relay"
	"github.com/casualjim/relay/chain"
	"github.com/shopspring/decimal"
)

// ErrDivideByZero is returned by the division and the failing step
var ErrDivideByZero = errors.New("attempted to divide by zero")

// Operation the calculator should perform
type Operation uint8

const (
	// Addition of both numbers
	Addition Operation = iota
	// Subtraction of the second number from the first
	Subtraction
	// Multiplication of both numbers
	Multiplication
	// Division of the first number by the second
	Division
)

func (o Operation) String() string {
	switch o {
	case Addition:
		return "addition"
	case Subtraction:
		return "subtraction"
	case Multiplication:
		return "multiplication"
	case Division:
		return "division"
	}
	return fmt.Sprintf("operation(%d)", uint8(o))
}

// NumberContext is the context threaded through the calculator
type NumberContext struct {
	chain.Flag
	Operation Operation
	Number1   decimal.Decimal
	Number2   decimal.Decimal
	Result    decimal.Decimal
}

// New creates a number context from integers
func New(n1, n2 int64, op Operation) *NumberContext {
	return &NumberContext{
		Operation: op,
		Number1:   decimal.NewFromInt(n1),
		Number2:   decimal.NewFromInt(n2),
	}
}

// Add accumulates the sum of both numbers into the result.
// Its compensation takes the sum out again.
type Add struct{ chain.StepName }

// Handle adds when the operation is an addition
func (a *Add) Handle(ctx context.Context, nc *NumberContext) (*NumberContext, error) {
	if nc.Operation != Addition {
		return nc, nil
	}
	nc.Result = nc.Result.Add(nc.Number1).Add(nc.Number2)
	relay.ContextLogger(ctx).Debugf("%s: result is now %s", a.Name(), nc.Result)
	return nc, nil
}

// Compensate subtracts the sum that Handle added
func (a *Add) Compensate(_ context.Context, nc *NumberContext) (*NumberContext, error) {
	if nc.Operation != Addition {
		return nc, nil
	}
	nc.Result = nc.Result.Sub(nc.Number1).Sub(nc.Number2)
	return nc, nil
}

// Sub sets the result to the difference, it has no compensation
type Sub struct{ chain.StepName }

// Handle subtracts when the operation is a subtraction
func (s *Sub) Handle(_ context.Context, nc *NumberContext) (*NumberContext, error) {
	if nc.Operation == Subtraction {
		nc.Result = nc.Number1.Sub(nc.Number2)
	}
	return nc, nil
}

// Mul sets the result to the product, it has no compensation
type Mul struct{ chain.StepName }

// Handle multiplies when the operation is a multiplication
func (m *Mul) Handle(_ context.Context, nc *NumberContext) (*NumberContext, error) {
	if nc.Operation == Multiplication {
		nc.Result = nc.Number1.Mul(nc.Number2)
	}
	return nc, nil
}

// Div sets the result to the quotient rounded to 2 places, it has no compensation
type Div struct{ chain.StepName }

// Handle divides when the operation is a division
func (d *Div) Handle(_ context.Context, nc *NumberContext) (*NumberContext, error) {
	if nc.Operation != Division {
		return nc, nil
	}
	if nc.Number2.IsZero() {
		return nc, ErrDivideByZero
	}
	nc.Result = nc.Number1.Div(nc.Number2).Round(2)
	return nc, nil
}

// Abort asks the pipeline to stop before the next step
type Abort struct{ chain.StepName }

// Handle sets the abort flag
func (a *Abort) Handle(_ context.Context, nc *NumberContext) (*NumberContext, error) {
	nc.Abort()
	return nc, nil
}

// Fail always fails with ErrDivideByZero
type Fail struct{ chain.StepName }

// Handle returns ErrDivideByZero
func (f *Fail) Handle(_ context.Context, nc *NumberContext) (*NumberContext, error) {
	return nc, ErrDivideByZero
}

// NewAdd creates an addition step
func NewAdd() chain.Step[*NumberContext] { return &Add{"add"} }

// NewSub creates a subtraction step
func NewSub() chain.Step[*NumberContext] { return &Sub{"sub"} }

// NewMul creates a multiplication step
func NewMul() chain.Step[*NumberContext] { return &Mul{"mul"} }

// NewDiv creates a division step
func NewDiv() chain.Step[*NumberContext] { return &Div{"div"} }

// NewAbort creates a step that aborts the pipeline
func NewAbort() chain.Step[*NumberContext] { return &Abort{"abort"} }

// NewFail creates a step that always fails
func NewFail() chain.Step[*NumberContext] { return &Fail{"fail"} }

// Calculator returns the four operations in order
func Calculator() []chain.Step[*NumberContext] {
	return []chain.Step[*NumberContext]{NewAdd(), NewSub(), NewMul(), NewDiv()}
}
