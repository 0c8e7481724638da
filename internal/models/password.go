package models

import "unicode"

// Strength score buckets returned by PasswordStrength.
const (
	StrengthVeryWeak = iota
	StrengthWeak
	StrengthFair
	StrengthGood
	StrengthStrong
)

// PasswordStrength scores a password from 0 (very weak) to 4 (strong) based
// on length and character-class variety. It is a UI hint, not a policy engine.
func PasswordStrength(pw string) int {
	if len(pw) < 8 {
		return StrengthVeryWeak
	}

	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}

	score := classes - 1
	if len(pw) >= 12 && score < StrengthStrong {
		score++
	}
	if score > StrengthStrong {
		score = StrengthStrong
	}
	return score
}
