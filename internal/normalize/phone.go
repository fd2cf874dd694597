package normalize

import "strings"

// fakePhones are well-known filler numbers seen in provider exports.
var fakePhones = map[string]struct{}{
	"1234567890": {},
	"0123456789": {},
	"9876543210": {},
	"0987654321": {},
	"1231231234": {},
	"8005551212": {},
	"4155552671": {},
}

// Phone normalizes a North American phone number to its 10 significant
// digits. It returns false when the input is not a plausible, dialable
// number. Normalizing an already-normalized number returns it unchanged.
func Phone(raw string) (string, bool) {
	digits := Digits(raw)
	if len(digits) == 13 && strings.HasPrefix(digits, "001") {
		digits = digits[2:]
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	if placeholderPhone(digits) {
		return "", false
	}
	return digits, true
}

// Subscriber returns the last seven digits (exchange plus line) of a
// normalized phone number.
func Subscriber(phone string) string {
	if len(phone) < 7 {
		return ""
	}
	return phone[len(phone)-7:]
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func placeholderPhone(d string) bool {
	if _, ok := fakePhones[d]; ok {
		return true
	}
	// Area codes never start with 0 or 1.
	if d[0] == '0' || d[0] == '1' {
		return true
	}
	if strings.Count(d, d[:1]) == len(d) {
		return true
	}
	// NXX-555-0100 through NXX-555-0199 are reserved for fiction.
	if d[3:6] == "555" && d[6:8] == "01" {
		return true
	}
	return false
}
