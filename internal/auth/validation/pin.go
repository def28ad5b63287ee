package validation

import (
	"errors"
	"regexp"
)

var (
	ErrPinFormat     = errors.New("PIN must be exactly 4 digits")
	ErrPinRepeating  = errors.New("PIN cannot have all same digits (e.g., 1111)")
	ErrPinSequential = errors.New("PIN cannot be sequential (e.g., 1234)")
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// sequentialPins lists the canonical ascending and descending 4-digit runs.
var sequentialPins = map[string]struct{}{
	"0123": {}, "1234": {}, "2345": {}, "3456": {}, "4567": {},
	"5678": {}, "6789": {}, "9876": {}, "8765": {}, "7654": {},
	"6543": {}, "5432": {}, "4321": {}, "3210": {},
}

// ValidatePin enforces the PIN policy: exactly 4 digits, not all identical,
// and not one of the canonical sequential runs. The same policy applies at
// bootstrap setup and at admin user creation.
func ValidatePin(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrPinFormat
	}
	if pin[0] == pin[1] && pin[1] == pin[2] && pin[2] == pin[3] {
		return ErrPinRepeating
	}
	if _, ok := sequentialPins[pin]; ok {
		return ErrPinSequential
	}
	return nil
}
