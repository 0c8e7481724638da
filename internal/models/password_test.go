package models

import "testing"

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		name string
		pw   string
		want int
	}{
		{name: "empty", pw: "", want: StrengthVeryWeak},
		{name: "short", pw: "abc123", want: StrengthVeryWeak},
		{name: "one class", pw: "abcdefgh", want: StrengthVeryWeak},
		{name: "two classes", pw: "abcdefg1", want: StrengthWeak},
		{name: "three classes", pw: "Abcdefg1", want: StrengthFair},
		{name: "four classes", pw: "Abcdef1!", want: StrengthGood},
		{name: "long three classes", pw: "Abcdefghijk1", want: StrengthGood},
		{name: "long four classes", pw: "Abcdefghij1!", want: StrengthStrong},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := PasswordStrength(test.pw); got != test.want {
				t.Errorf("PasswordStrength(%q) = %d, want %d", test.pw, got, test.want)
			}
		})
	}
}
