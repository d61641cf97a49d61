/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the engine's closed set of error kinds, each
// mapped to the HTTP status the thin adapter would use, never constructed
// outside this package so call sites stay on that small, closed set.
package errors

import (
	"errors"
	"fmt"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/apis"
)

// Kind is the stable machine-readable discriminator every error carries.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindEligibility Kind = "ELIGIBILITY"
	KindTransient   Kind = "TRANSIENT"
	KindFatal       Kind = "FATAL"
)

// HTTPStatus is the status code the (non-core) HTTP adapter maps a Kind to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindEligibility:
		return 422
	case KindTransient:
		return 503
	case KindFatal:
		return 500
	default:
		return 500
	}
}

// EngineError is the common shape every error kind below implements.
type EngineError struct {
	kind    Kind
	code    string
	message string
	wrapped error
	Issues  []apis.EligibilityIssue // only set for EligibilityError
}

func (e *EngineError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *EngineError) Unwrap() error { return e.wrapped }

// Code is the stable machine-readable code every error carries.
func (e *EngineError) Code() string { return e.code }

// Kind reports which of the six kinds this error is.
func (e *EngineError) Kind() Kind { return e.kind }

func newErr(kind Kind, code, message string, wrapped error) *EngineError {
	return &EngineError{kind: kind, code: code, message: message, wrapped: wrapped}
}

// Validation wraps an input-validation failure; never retried.
func Validation(code, message string) *EngineError {
	return newErr(KindValidation, code, message, nil)
}

// NotFound reports a referenced entity is absent.
func NotFound(entity, id string) *EngineError {
	return newErr(KindNotFound, "NOT_FOUND_"+entity, fmt.Sprintf("%s %q not found", entity, id), nil)
}

// Conflict reports an optimistic-concurrency mismatch or an action that
// does not apply to the entity's current state.
func Conflict(code, message string) *EngineError {
	return newErr(KindConflict, code, message, nil)
}

// Eligibility reports the domain rejected an action, carrying the issue list.
func Eligibility(code, message string, issues []apis.EligibilityIssue) *EngineError {
	e := newErr(KindEligibility, code, message, nil)
	e.Issues = issues
	return e
}

// Transient wraps an I/O failure that bounded retry already exhausted.
func Transient(code, message string, cause error) *EngineError {
	return newErr(KindTransient, code, message, cause)
}

// Fatal reports an invariant violation; callers should flag the owning
// shift needsOperatorReview.
func Fatal(code, message string, cause error) *EngineError {
	return newErr(KindFatal, code, message, cause)
}

// Is supports errors.Is(err, ErrStaleVersion) style sentinel checks by kind.
func Is(err error, kind Kind) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.kind == kind
	}
	return false
}

// ErrStaleVersion is returned by Store writes that observe a version other
// than the caller's expectedVersion.
var ErrStaleVersion = Conflict("STALE_VERSION", "expected version does not match stored version")
