// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

// Outcome is the terminal result of a single workflow invocation
type Outcome string

const (
	OutcomeNone         Outcome = ""
	OutcomeSuccess      Outcome = "Success"
	OutcomeTrialValid   Outcome = "TrialValid"
	OutcomeTrialEnded   Outcome = "TrialEnded"
	OutcomeReceiptExp   Outcome = "ReceiptExpired"
	OutcomeExpired      Outcome = "Expired"
	OutcomeUnregistered Outcome = "Unregistered"
	OutcomeReleased     Outcome = "Released"
	OutcomeFault        Outcome = "Fault"
)

func (o Outcome) String() string {
	if o == OutcomeNone {
		return "None"
	}
	return string(o)
}

// OutcomeForStatus maps a derived status to the outcome Launch reports for it
func OutcomeForStatus(s Status) Outcome {
	switch s {
	case StatusValid:
		return OutcomeSuccess
	case StatusValidTrial:
		return OutcomeTrialValid
	case StatusInValidTrial:
		return OutcomeTrialEnded
	case StatusReceiptExpired:
		return OutcomeReceiptExp
	case StatusExpired:
		return OutcomeExpired
	case StatusReceiptUnregistered:
		return OutcomeUnregistered
	default:
		return OutcomeNone
	}
}

// Context is the per-invocation handling state. It is passed by value into a
// workflow and the updated copy is returned. Record is the last record that was
// read and verified successfully, Err the fault of the last workflow if any.
type Context struct {
	Preferences Preferences
	Record      *Record
	Status      Status
	Outcome     Outcome
	Err         error
}

// NewContext starts a fresh context for one invocation
func NewContext(prefs Preferences) Context {
	return Context{Preferences: prefs}
}

// WithRecord returns a copy holding rec and its derived status
func (c Context) WithRecord(rec *Record, status Status) Context {
	c.Record = rec.Clone()
	c.Status = status
	if c.Record != nil {
		c.Record.Status = status
	}
	return c
}

// WithOutcome returns a copy with the terminal outcome set and the fault cleared
func (c Context) WithOutcome(o Outcome) Context {
	c.Outcome = o
	c.Err = nil
	return c
}

// WithFault returns a copy carrying err. Record and Status are left as they were
// so callers can still render the stale state.
func (c Context) WithFault(err error) Context {
	c.Outcome = OutcomeFault
	c.Err = err
	return c
}

// Faulted reports whether the last workflow ended in a fault
func (c Context) Faulted() bool {
	return c.Err != nil
}

// HasRecord reports whether a verified record is held
func (c Context) HasRecord() bool {
	return c.Record != nil
}
