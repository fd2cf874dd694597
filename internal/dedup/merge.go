package dedup

import (
	"strings"
	"time"

	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/normalize"
)

// PlanMerge lists the updates that fill empty fields of target from
// incoming. Existing values are never overwritten. A channel list counts as
// empty when the target holds no valid entry for it.
func PlanMerge(target, incoming identity.IdentityRecord, source string, now time.Time) []FieldUpdate {
	var updates []FieldUpdate
	scalar := func(field, have, offered string) {
		if strings.TrimSpace(have) != "" || strings.TrimSpace(offered) == "" {
			return
		}
		updates = append(updates, FieldUpdate{
			Field:     field,
			Value:     strings.TrimSpace(offered),
			Source:    source,
			WrittenAt: now,
		})
	}

	scalar(identity.FieldFirstName, target.FirstName, incoming.FirstName)
	scalar(identity.FieldMiddleName, target.MiddleName, incoming.MiddleName)
	scalar(identity.FieldLastName, target.LastName, incoming.LastName)
	scalar(identity.FieldSuffix, target.Suffix, incoming.Suffix)

	if len(normalize.RecordPhones(target)) == 0 {
		if phones := validPhones(incoming.Phones); len(phones) > 0 {
			updates = append(updates, FieldUpdate{Field: identity.FieldPhone, Phones: phones, Source: source, WrittenAt: now})
		}
	}
	if len(normalize.RecordEmails(target)) == 0 {
		if emails := validEmails(incoming.Emails); len(emails) > 0 {
			updates = append(updates, FieldUpdate{Field: identity.FieldEmail, Emails: emails, Source: source, WrittenAt: now})
		}
	}
	if len(normalize.RecordAddresses(target)) == 0 {
		if addrs := nonEmptyAddresses(incoming.Addresses); len(addrs) > 0 {
			updates = append(updates, FieldUpdate{Field: identity.FieldAddress, Addresses: addrs, Source: source, WrittenAt: now})
		}
	}

	return updates
}

// ApplyUpdates returns a copy of rec with updates applied. Storage metadata
// is left to the caller.
func ApplyUpdates(rec identity.IdentityRecord, updates []FieldUpdate) identity.IdentityRecord {
	out := rec
	for _, u := range updates {
		switch u.Field {
		case identity.FieldFirstName:
			out.FirstName = u.Value
		case identity.FieldMiddleName:
			out.MiddleName = u.Value
		case identity.FieldLastName:
			out.LastName = u.Value
		case identity.FieldSuffix:
			out.Suffix = u.Value
		case identity.FieldPhone:
			out.Phones = append(append([]identity.Phone(nil), out.Phones...), u.Phones...)
		case identity.FieldEmail:
			out.Emails = append(append([]identity.Email(nil), out.Emails...), u.Emails...)
		case identity.FieldAddress:
			out.Addresses = append(append([]identity.Address(nil), out.Addresses...), u.Addresses...)
		}
	}
	return out
}

func validPhones(in []identity.Phone) []identity.Phone {
	var out []identity.Phone
	for _, p := range in {
		if _, ok := normalize.Phone(p.Number); ok {
			out = append(out, p)
		}
	}
	return out
}

func validEmails(in []identity.Email) []identity.Email {
	var out []identity.Email
	for _, e := range in {
		if _, ok := normalize.Email(e.Address); ok {
			out = append(out, e)
		}
	}
	return out
}

func nonEmptyAddresses(in []identity.Address) []identity.Address {
	var out []identity.Address
	for _, a := range in {
		if !normalize.Address(a).Empty() {
			out = append(out, a)
		}
	}
	return out
}
