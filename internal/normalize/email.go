package normalize

import "strings"

var placeholderLocals = map[string]struct{}{
	"test": {}, "testing": {}, "noreply": {}, "no-reply": {}, "donotreply": {},
	"do-not-reply": {}, "none": {}, "na": {}, "n-a": {}, "null": {}, "nil": {},
	"unknown": {}, "email": {}, "noemail": {}, "no-email": {}, "nobody": {},
	"fake": {}, "asdf": {}, "xxx": {},
}

var placeholderDomains = map[string]struct{}{
	"example.com": {}, "example.org": {}, "example.net": {}, "test.com": {},
	"email.com": {}, "domain.com": {}, "mailinator.com": {}, "localhost": {},
	"invalid": {}, "noemail.com": {}, "none.com": {},
}

// Email normalizes an email address to lower case and validates its basic
// shape. Placeholder addresses are rejected.
func Email(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	s = strings.ToLower(strings.Trim(s, " \t\"'<>"))
	if s == "" || strings.ContainsAny(s, " \t\r\n,;<>\"") {
		return "", false
	}
	if strings.Count(s, "@") != 1 {
		return "", false
	}

	local, domain, _ := strings.Cut(s, "@")
	if local == "" || !validDomain(domain) {
		return "", false
	}
	if _, ok := placeholderLocals[local]; ok {
		return "", false
	}
	if _, ok := placeholderDomains[domain]; ok {
		return "", false
	}
	return s, true
}

// MailboxKey returns the delivery mailbox of a normalized address. Plus
// tags are dropped and Gmail's ignored dots are removed, so
// "j.doe+promo@googlemail.com" and "jdoe@gmail.com" share a key.
func MailboxKey(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	local, _, _ = strings.Cut(local, "+")
	if domain == "googlemail.com" {
		domain = "gmail.com"
	}
	if domain == "gmail.com" {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + domain
}

func validDomain(domain string) bool {
	if domain == "localhost" || domain == "invalid" {
		// Rejected as placeholders, but well formed.
		return true
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") ||
		strings.Contains(domain, "..") {
		return false
	}
	return true
}
