// Package validation provides centralized input validation for data stream
// identifiers, sequence ranges and snapshot paths.
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/xtxerr/datastreams/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowSpaces  bool
}

// DefaultNameRules returns the rules for data type names.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// DeviceRoleRules returns the rules for device role names.
// Roles are human-readable ("Participant's phone") so spaces and
// apostrophes pass; path separators never do since they delimit stream refs.
func DeviceRoleRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowSpaces:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name cannot start or end with whitespace")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ' ', '\'':
		return rules.AllowSpaces
	}
	return false
}

// ValidateDeviceRole validates the role name of a device in a deployment.
func ValidateDeviceRole(role string) error {
	if err := ValidateName(role, DeviceRoleRules()); err != nil {
		return fmt.Errorf("device role %q: %v: %w", role, err, errors.ErrInvalidStreamID)
	}
	return nil
}

// =============================================================================
// Data Type Validation
// =============================================================================

// ValidateDataType validates a data type namespace and name.
// The namespace is a dotted path ("dk.cachet.carp"); every segment follows
// the default name rules.
func ValidateDataType(namespace, name string) error {
	if namespace == "" {
		return fmt.Errorf("data type namespace: %w", errors.ErrMissingField)
	}
	for _, segment := range strings.Split(namespace, ".") {
		if err := ValidateName(segment, DefaultNameRules()); err != nil {
			return fmt.Errorf("data type namespace %q: %v: %w", namespace, err, errors.ErrInvalidStreamID)
		}
	}
	if err := ValidateName(name, DefaultNameRules()); err != nil {
		return fmt.Errorf("data type name %q: %v: %w", name, err, errors.ErrInvalidStreamID)
	}
	return nil
}

// =============================================================================
// Sequence Validation
// =============================================================================

// ValidateFirstSequenceID checks that a sequence starts at a non-negative id.
func ValidateFirstSequenceID(id int64) error {
	if id < 0 {
		return fmt.Errorf("first sequence id %d is negative: %w", id, errors.ErrInvalidSequence)
	}
	return nil
}

// ValidateTriggerIDs checks that a sequence is attributed to at least one trigger.
func ValidateTriggerIDs(ids []int) error {
	if len(ids) == 0 {
		return fmt.Errorf("trigger ids are empty: %w", errors.ErrInvalidSequence)
	}
	return nil
}

// ValidateClockSpeed checks that a sync point's relative clock speed is a
// positive finite number.
func ValidateClockSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("relative clock speed %v must be positive and finite: %w", speed, errors.ErrInvalidSequence)
	}
	return nil
}

// ValidateSequenceRange checks a query window [from, toInclusive].
// A nil upper bound means unbounded.
func ValidateSequenceRange(from int64, toInclusive *int64) error {
	if from < 0 {
		return fmt.Errorf("from sequence id %d is negative: %w", from, errors.ErrInvalidRange)
	}
	if toInclusive == nil {
		return nil
	}
	if *toInclusive < from {
		return fmt.Errorf("to sequence id %d precedes from sequence id %d: %w", *toInclusive, from, errors.ErrInvalidRange)
	}
	if *toInclusive == math.MaxInt64 {
		return fmt.Errorf("to sequence id %d: %w", *toInclusive, errors.ErrIndexCapacity)
	}
	return nil
}

// =============================================================================
// Stream References
// =============================================================================

// StreamRef is a parsed "deployment/role/data.type" reference as typed in
// the shell or on the command line.
type StreamRef struct {
	Deployment string
	DeviceRole string
	DataType   string
}

// ParseStreamRef parses a "deployment/role/namespace.name" reference.
func ParseStreamRef(ref string) (*StreamRef, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty stream reference: %w", errors.ErrInvalidStreamID)
	}

	parts := strings.SplitN(ref, "/", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid stream reference %q: expected 'deployment/role/data.type': %w", ref, errors.ErrInvalidStreamID)
	}

	r := &StreamRef{
		Deployment: strings.TrimSpace(parts[0]),
		DeviceRole: strings.TrimSpace(parts[1]),
		DataType:   strings.TrimSpace(parts[2]),
	}
	if r.Deployment == "" || r.DeviceRole == "" || r.DataType == "" {
		return nil, fmt.Errorf("invalid stream reference %q: empty component: %w", ref, errors.ErrInvalidStreamID)
	}
	if err := ValidateDeviceRole(r.DeviceRole); err != nil {
		return nil, err
	}

	return r, nil
}

// String returns the string representation of the stream reference.
func (r *StreamRef) String() string {
	return r.Deployment + "/" + r.DeviceRole + "/" + r.DataType
}

// =============================================================================
// SQL literals
// =============================================================================

// QuoteLiteral quotes s as a single-quoted SQL string literal.
// DuckDB table functions such as read_parquet take their path as a literal,
// which cannot be bound as a parameter.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
