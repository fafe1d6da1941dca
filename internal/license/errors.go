// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFileMissing        = errors.New("license file not found")
	ErrFileCorrupt        = errors.New("license file corrupt or untrusted")
	ErrNetwork            = errors.New("activation service unreachable")
	ErrServerRejected     = errors.New("activation service rejected the request")
	ErrInvalidReceiptCode = errors.New("invalid receipt code")
)

// MaxReceiptCodeLength is the longest product key accepted before any network call
const MaxReceiptCodeLength = 100

// FaultKind classifies a workflow fault
type FaultKind string

const (
	FaultFileMissing        FaultKind = "file_missing"
	FaultFileCorrupt        FaultKind = "file_corrupt"
	FaultNetwork            FaultKind = "network"
	FaultServerRejected     FaultKind = "server_rejected"
	FaultInvalidReceiptCode FaultKind = "invalid_receipt_code"
	FaultInternal           FaultKind = "internal"
)

var kindSentinels = map[FaultKind]error{
	FaultFileMissing:        ErrFileMissing,
	FaultFileCorrupt:        ErrFileCorrupt,
	FaultNetwork:            ErrNetwork,
	FaultServerRejected:     ErrServerRejected,
	FaultInvalidReceiptCode: ErrInvalidReceiptCode,
}

// Fault is the error type produced by the engine and the activation client.
// errors.Is matches a Fault against the sentinel of its kind.
type Fault struct {
	Kind    FaultKind
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

// NewFault builds a fault of the given kind
func NewFault(kind FaultKind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}

func (f *Fault) Error() string {
	var b strings.Builder
	if f.Op != "" {
		b.WriteString(f.Op)
		b.WriteString(": ")
	}

	if sentinel, ok := kindSentinels[f.Kind]; ok {
		b.WriteString(sentinel.Error())
	} else {
		b.WriteString(string(f.Kind))
	}

	if f.Status != 0 {
		fmt.Fprintf(&b, " (status %d", f.Status)
		if f.Code != "" {
			fmt.Fprintf(&b, ", code %s", f.Code)
		}
		b.WriteString(")")
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	} else if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches the sentinel for the fault kind
func (f *Fault) Is(target error) bool {
	sentinel, ok := kindSentinels[f.Kind]
	return ok && target == sentinel
}

// Recoverable reports whether a local Install can repair the fault
func (f *Fault) Recoverable() bool {
	return f.Kind == FaultFileMissing || f.Kind == FaultFileCorrupt
}

// KindOf classifies any error returned by the engine. Errors that are not faults
// are reported as internal.
func KindOf(err error) FaultKind {
	if err == nil {
		return ""
	}

	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}

	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return FaultInternal
}

// IsRecoverable reports whether err can be repaired locally by installing a fresh
// license file.
func IsRecoverable(err error) bool {
	kind := KindOf(err)
	return kind == FaultFileMissing || kind == FaultFileCorrupt
}

// ValidateReceiptCode applies the product key rules before a code is sent
func ValidateReceiptCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return &Fault{Kind: FaultInvalidReceiptCode, Op: "validate code", Message: "product code cannot be empty"}
	}
	if len(code) > MaxReceiptCodeLength {
		return &Fault{
			Kind:    FaultInvalidReceiptCode,
			Op:      "validate code",
			Message: fmt.Sprintf("product code cannot be more than %d characters", MaxReceiptCodeLength),
		}
	}
	return nil
}
