package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies selection failures so callers can branch without string matching.
type Kind int

const (
	// KindUnknown - error did not originate from the selection core
	KindUnknown Kind = iota
	// KindEmptyPool - selection attempted with zero usable candidates
	KindEmptyPool
	// KindInvalidWeights - all criterion weights zero, or any negative/NaN
	KindInvalidWeights
	// KindInvalidCriterionValue - NaN, infinite, missing or disallowed negative raw value
	KindInvalidCriterionValue
	// KindUnknownCandidate - feedback for an identifier the engine never saw (strict mode)
	KindUnknownCandidate
	// KindInvalidConfig - malformed configuration detected at setup time
	KindInvalidConfig
)

func (k Kind) String() string {
	switch k {
	case KindEmptyPool:
		return "empty_pool"
	case KindInvalidWeights:
		return "invalid_weights"
	case KindInvalidCriterionValue:
		return "invalid_criterion_value"
	case KindUnknownCandidate:
		return "unknown_candidate"
	case KindInvalidConfig:
		return "invalid_config"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *SelectionError of the same kind.
var (
	ErrEmptyPool             = errors.New("empty candidate pool")
	ErrInvalidWeights        = errors.New("invalid criterion weights")
	ErrInvalidCriterionValue = errors.New("invalid criterion value")
	ErrUnknownCandidate      = errors.New("unknown candidate")
	ErrInvalidConfig         = errors.New("invalid configuration")
)

func sentinel(k Kind) error {
	switch k {
	case KindEmptyPool:
		return ErrEmptyPool
	case KindInvalidWeights:
		return ErrInvalidWeights
	case KindInvalidCriterionValue:
		return ErrInvalidCriterionValue
	case KindUnknownCandidate:
		return ErrUnknownCandidate
	case KindInvalidConfig:
		return ErrInvalidConfig
	default:
		return nil
	}
}

// SelectionError carries the kind of failure plus the candidate and criterion
// it concerns, when known.
type SelectionError struct {
	Kind      Kind
	Candidate string
	Criterion string
	Message   string
	Err       error
}

func (e *SelectionError) Error() string {
	var b strings.Builder
	if s := sentinel(e.Kind); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("selection error")
	}
	if e.Candidate != "" {
		fmt.Fprintf(&b, " (candidate %q)", e.Candidate)
	}
	if e.Criterion != "" {
		fmt.Fprintf(&b, " (criterion %q)", e.Criterion)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SelectionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrEmptyPool) match any SelectionError of that kind.
func (e *SelectionError) Is(target error) bool {
	s := sentinel(e.Kind)
	return s != nil && target == s
}

// New builds a SelectionError of the given kind.
func New(kind Kind, format string, args ...any) *SelectionError {
	return &SelectionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewEmptyPool reports a selection round with nothing to choose from.
func NewEmptyPool(cause error) *SelectionError {
	return &SelectionError{Kind: KindEmptyPool, Err: cause}
}

// NewInvalidWeights reports an unusable weight vector.
func NewInvalidWeights(format string, args ...any) *SelectionError {
	return New(KindInvalidWeights, format, args...)
}

// NewInvalidValue reports a bad raw attribute value for one candidate.
func NewInvalidValue(candidate, criterion string, format string, args ...any) *SelectionError {
	return &SelectionError{
		Kind:      KindInvalidCriterionValue,
		Candidate: candidate,
		Criterion: criterion,
		Message:   fmt.Sprintf(format, args...),
	}
}

// NewUnknownCandidate reports feedback for an identifier with no record.
func NewUnknownCandidate(candidate string) *SelectionError {
	return &SelectionError{Kind: KindUnknownCandidate, Candidate: candidate}
}

// NewInvalidConfig reports a configuration problem found during setup.
func NewInvalidConfig(format string, args ...any) *SelectionError {
	return New(KindInvalidConfig, format, args...)
}

// KindOf returns the Kind of the first SelectionError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var selErr *SelectionError
	if errors.As(err, &selErr) {
		return selErr.Kind
	}
	for k := KindEmptyPool; k <= KindInvalidConfig; k++ {
		if errors.Is(err, sentinel(k)) {
			return k
		}
	}
	return KindUnknown
}

// IsEmptyPool checks if err reports an empty candidate pool
func IsEmptyPool(err error) bool {
	return errors.Is(err, ErrEmptyPool)
}

// IsInvalidWeights checks if err reports an unusable weight vector
func IsInvalidWeights(err error) bool {
	return errors.Is(err, ErrInvalidWeights)
}

// IsInvalidValue checks if err reports a bad raw criterion value
func IsInvalidValue(err error) bool {
	return errors.Is(err, ErrInvalidCriterionValue)
}

// IsUnknownCandidate checks if err reports feedback for an unseen candidate
func IsUnknownCandidate(err error) bool {
	return errors.Is(err, ErrUnknownCandidate)
}

// IsInvalidConfig checks if err reports a setup-time configuration problem
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrInvalidWeights)
}
