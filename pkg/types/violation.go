// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ViolationKind identifies which consistency rule a violation came from.
type ViolationKind string

const (
	KindMissingOrigin      ViolationKind = "missing_origin"
	KindBrokenOrigin       ViolationKind = "broken_origin"
	KindNonUniqueOrigin    ViolationKind = "non_unique_origin"
	KindOriginRemoved      ViolationKind = "origin_removed"
	KindDuplicateID        ViolationKind = "duplicate_id"
	KindInvalidStatus      ViolationKind = "invalid_status"
	KindInvalidTransition  ViolationKind = "invalid_transition"
	KindScreeningCriteria  ViolationKind = "screening_criteria"
	KindPropagatedIDChange ViolationKind = "propagated_id_change"
	KindSourceSetup        ViolationKind = "source_setup"
)

// Severity controls how a violation affects a commit.
type Severity string

const (
	// SeverityWarning is reported but never blocks a commit.
	SeverityWarning Severity = "warning"
	// SeverityError blocks the commit until fixed.
	SeverityError Severity = "error"
	// SeverityFatal aborts the current operation.
	SeverityFatal Severity = "fatal"
)

// Violation is one integrity problem found in a record collection.
type Violation struct {
	Kind      ViolationKind `json:"kind" yaml:"kind"`
	Severity  Severity      `json:"severity" yaml:"severity"`
	RecordIDs []string      `json:"record_ids,omitempty" yaml:"record_ids,omitempty"`
	Detail    string        `json:"detail" yaml:"detail"`

	// Notifications lists locations that still mention a stale id. Only set
	// for propagated id changes.
	Notifications []string `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// String renders the violation as a single report line.
func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// Blocking reports whether the violation prevents a commit.
func (v Violation) Blocking() bool {
	return v.Severity == SeverityError || v.Severity == SeverityFatal
}
