// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the result taxonomy every placement, reservation, and
// persistence operation reports through.
type Code int

const (
	// OK indicates success.
	OK Code = iota
	// Invalid marks malformed or nonsensical input.
	Invalid
	// MemoryBusy marks insufficient memory on a required node.
	MemoryBusy
	// NodesBusy marks that no placement could be found.
	NodesBusy
	// PortsBusy marks that fewer than the requested ports were free.
	PortsBusy
	// PortsInvalid marks a port request larger than the configured range.
	PortsInvalid
	// InternalUnderflow marks an accounting drift that was clamped and
	// logged rather than failing the caller.
	InternalUnderflow
	// PersistVersionMismatch marks a restore rejected due to a header
	// mismatch; the core starts clean.
	PersistVersionMismatch
	// PersistCorrupt marks an unpack failure; partial state is rolled back.
	PersistCorrupt
)

var codeNames = map[Code]string{
	OK:                     "ok",
	Invalid:                "invalid",
	MemoryBusy:             "memory busy",
	NodesBusy:              "nodes busy",
	PortsBusy:              "ports busy",
	PortsInvalid:           "ports invalid",
	InternalUnderflow:      "internal underflow",
	PersistVersionMismatch: "persisted state version mismatch",
	PersistCorrupt:         "persisted state corrupt",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error wraps a Code with a descriptive message and satisfies the error
// interface. Callers read the kind of failure from the Code field (or
// through codeOf); Unwrap exposes any underlying cause to errors.Is/As.
type Error struct {
	Code  Code
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// newError builds an *Error with a formatted message.
func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// wrapError builds an *Error annotating an underlying cause (typically an
// I/O or decoding failure from the persistence codec) with call-site
// context, the way github.com/pkg/errors.Wrap annotates a stack.
func wrapError(code Code, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Code: code, Msg: msg, cause: errors.Wrap(cause, msg)}
}

// codeOf extracts the Code from an error produced by this package, or OK
// if err is nil, or Invalid if err is of a foreign type.
func codeOf(err error) Code {
	if err == nil {
		return OK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Invalid
}
