package leadcard

import (
	"strings"

	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/normalize"
)

// CardPhone is a phone on a lead card.
type CardPhone struct {
	identity.Phone
	Normalized string `json:"normalized"`
	Seen
}

// CardEmail is an email on a lead card.
type CardEmail struct {
	identity.Email
	Normalized string `json:"normalized"`
	Seen
}

// CardAddress is a postal address on a lead card.
type CardAddress struct {
	identity.Address
	Normalized normalize.NormalizedAddress `json:"normalized"`
	Seen
}

// CardSocial is a social profile on a lead card.
type CardSocial struct {
	identity.Social
	Seen
}

// Primary implements Entry.
func (p CardPhone) Primary() bool { return p.IsPrimary }

// Provenance implements Entry.
func (p CardPhone) Provenance() Seen { return p.Seen }

// WithProvenance implements Entry.
func (p CardPhone) WithProvenance(s Seen) CardPhone { p.Seen = s; return p }

// Primary implements Entry.
func (e CardEmail) Primary() bool { return e.IsPrimary }

// Provenance implements Entry.
func (e CardEmail) Provenance() Seen { return e.Seen }

// WithProvenance implements Entry.
func (e CardEmail) WithProvenance(s Seen) CardEmail { e.Seen = s; return e }

// Primary implements Entry. Addresses have no explicit primary flag.
func (a CardAddress) Primary() bool { return false }

// Provenance implements Entry.
func (a CardAddress) Provenance() Seen { return a.Seen }

// WithProvenance implements Entry.
func (a CardAddress) WithProvenance(s Seen) CardAddress { a.Seen = s; return a }

// Primary implements Entry.
func (s CardSocial) Primary() bool { return false }

// Provenance implements Entry.
func (s CardSocial) Provenance() Seen { return s.Seen }

// WithProvenance implements Entry.
func (s CardSocial) WithProvenance(v Seen) CardSocial { s.Seen = v; return s }

// Dedupe keys.

func phoneKey(p CardPhone) (string, bool) {
	return normalize.Phone(p.Number)
}

func emailKey(e CardEmail) (string, bool) {
	return normalize.Email(e.Address)
}

func addressKey(a CardAddress) (string, bool) {
	k := normalize.Address(a.Address).Key()
	return k, k != ""
}

func socialKey(s CardSocial) (string, bool) {
	platform := strings.ToLower(strings.TrimSpace(s.Platform))
	handle := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s.Handle), "@"))
	if handle == "" {
		handle = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s.URL)), "/")
	}
	if platform == "" || handle == "" {
		return "", false
	}
	return platform + ":" + handle, true
}

// SelectPrimaryPhone picks the card's primary phone: a mobile line when one
// exists, otherwise the best-ranked phone.
func SelectPrimaryPhone(phones []CardPhone) (CardPhone, bool) {
	if len(phones) == 0 {
		return CardPhone{}, false
	}
	for _, p := range phones {
		if p.Type == identity.PhoneMobile {
			return p, true
		}
	}
	return phones[0], true
}

// SelectPrimaryEmail picks the best-ranked email.
func SelectPrimaryEmail(emails []CardEmail) (CardEmail, bool) {
	if len(emails) == 0 {
		return CardEmail{}, false
	}
	return emails[0], true
}

// SelectPrimaryAddress picks the card's primary address: a current address
// when one exists, otherwise the best-ranked address.
func SelectPrimaryAddress(addrs []CardAddress) (CardAddress, bool) {
	if len(addrs) == 0 {
		return CardAddress{}, false
	}
	for _, a := range addrs {
		if a.IsCurrent {
			return a, true
		}
	}
	return addrs[0], true
}

// SelectPrimarySocial picks the best-ranked social profile.
func SelectPrimarySocial(socials []CardSocial) (CardSocial, bool) {
	if len(socials) == 0 {
		return CardSocial{}, false
	}
	return socials[0], true
}
