// Package validation enforces the format and strength policy for usernames,
// passwords, PINs, and generated SQL identifiers. Validators are pure
// functions; none of them touch storage or log anything.
package validation

import (
	"strings"
	"unicode"
)

const (
	passwordMinLength = 12
	specialChars      = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"
)

// commonPasswords is a fixed dictionary of passwords rejected outright.
var commonPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "12345678": {}, "qwerty": {},
	"abc123": {}, "monkey": {}, "1234567": {}, "letmein": {},
	"trustno1": {}, "dragon": {}, "baseball": {}, "iloveyou": {},
	"master": {}, "sunshine": {}, "ashley": {}, "bailey": {},
	"passw0rd": {}, "shadow": {}, "123123": {}, "654321": {},
	"superman": {}, "qazwsx": {}, "michael": {}, "football": {},
	"password123": {}, "qwerty123": {}, "admin123": {}, "welcome1": {},
}

// PasswordStrength is the scored outcome of a strength check. Feedback
// accumulates every violation so the caller can show them all at once.
// IsValid reflects only the hard requirements; soft checks (repeats,
// sequential runs) lower the score without invalidating the password.
type PasswordStrength struct {
	Score    int      // 0-4
	Feedback []string
	IsValid  bool
}

// ValidatePasswordStrength scores a candidate password against the policy:
// at least 12 characters, all four character classes, and not a dictionary
// password. Repeated-character runs and sequential runs deduct from the score.
func ValidatePasswordStrength(password string) PasswordStrength {
	var feedback []string
	score := 0

	if len(password) < passwordMinLength {
		feedback = append(feedback, "Password must be at least 12 characters long")
	} else {
		score++
	}
	if len(password) >= 16 {
		score++
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		feedback = append(feedback, "Password must contain at least one uppercase letter")
	} else {
		score++
	}
	if !hasLower {
		feedback = append(feedback, "Password must contain at least one lowercase letter")
	} else {
		score++
	}
	if !hasNumber {
		feedback = append(feedback, "Password must contain at least one number")
	} else {
		score++
	}
	if !hasSpecial {
		feedback = append(feedback, "Password must contain at least one special character")
	} else {
		score++
	}

	_, isCommon := commonPasswords[strings.ToLower(password)]
	if isCommon {
		feedback = append(feedback, "This password is too common. Please choose a stronger password")
		score -= 2
	}

	if hasRepeatedRun(password, 3) {
		feedback = append(feedback, "Avoid repeating characters (e.g., aaa, 111)")
		score--
	}

	if hasSequentialRun(password) {
		feedback = append(feedback, "Avoid sequential characters (e.g., abc, 123)")
		score--
	}

	if score < 0 {
		score = 0
	}
	if score > 4 {
		score = 4
	}

	isValid := len(password) >= passwordMinLength &&
		hasUpper && hasLower && hasNumber && hasSpecial && !isCommon

	return PasswordStrength{Score: score, Feedback: feedback, IsValid: isValid}
}

// hasRepeatedRun reports whether any character repeats n or more times in a row.
func hasRepeatedRun(s string, n int) bool {
	var last rune
	count := 0
	for i, r := range s {
		if i > 0 && r == last {
			count++
			if count >= n {
				return true
			}
		} else {
			last = r
			count = 1
		}
	}
	return false
}

// hasSequentialRun reports whether the password contains a 3-character
// ascending alphabetic or numeric run, case-insensitively.
func hasSequentialRun(s string) bool {
	low := strings.ToLower(s)
	for _, seq := range []string{"abcdefghijklmnopqrstuvwxyz", "0123456789"} {
		for i := 0; i+3 <= len(seq); i++ {
			if strings.Contains(low, seq[i:i+3]) {
				return true
			}
		}
	}
	return false
}
