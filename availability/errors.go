package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxDurationMinutes caps a single declaration at one year so expiry
// arithmetic cannot overflow.
const MaxDurationMinutes = 525600

// MaxActivityLength is the longest activity label accepted, in characters.
const MaxActivityLength = 100

var (
	// ErrInvalidDuration is returned for a non-numeric, non-positive or
	// out-of-range duration. No state is changed.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrNoActiveEntry is returned when an update targets a user without an entry.
	ErrNoActiveEntry = errors.New("no active availability entry")
	// ErrInvalidUser is returned for an empty user identifier.
	ErrInvalidUser = errors.New("user id is empty")
	// ErrInvalidActivity is returned for a blank or overlong activity label.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrPersistence wraps failures of the durable write.
	ErrPersistence = errors.New("persist availability")
)

// ParseDuration validates user-typed minutes. Only a plain base-10 integer
// (surrounding whitespace allowed) between 1 and MaxDurationMinutes is
// accepted; "30min" or "1.5" are rejected rather than truncated.
func ParseDuration(input string) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number of minutes", ErrInvalidDuration, s)
	}
	if err := validateMinutes(n); err != nil {
		return 0, err
	}
	return n, nil
}

func validateMinutes(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d must be positive", ErrInvalidDuration, n)
	}
	if n > MaxDurationMinutes {
		return fmt.Errorf("%w: %d exceeds %d minutes", ErrInvalidDuration, n, MaxDurationMinutes)
	}
	return nil
}

func validateActivity(activity string) error {
	if strings.TrimSpace(activity) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidActivity)
	}
	if n := utf8.RuneCountInString(activity); n > MaxActivityLength {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidActivity, n, MaxActivityLength)
	}
	return nil
}
