package normalize

import "github.com/sells-group/lead-identity/internal/identity"

// RecordName returns the normalized name of a record.
func RecordName(r identity.IdentityRecord) PersonName {
	return NameParts(r.FirstName, r.MiddleName, r.LastName, r.Suffix)
}

// RecordPhones returns the distinct valid normalized phones of a record in
// reported order.
func RecordPhones(r identity.IdentityRecord) []string {
	var out []string
	seen := make(map[string]struct{}, len(r.Phones))
	for _, p := range r.Phones {
		n, ok := Phone(p.Number)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// RecordEmails returns the distinct valid normalized emails of a record in
// reported order.
func RecordEmails(r identity.IdentityRecord) []string {
	var out []string
	seen := make(map[string]struct{}, len(r.Emails))
	for _, e := range r.Emails {
		n, ok := Email(e.Address)
		if !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// RecordAddresses returns the distinct non-empty normalized addresses of a
// record in reported order.
func RecordAddresses(r identity.IdentityRecord) []NormalizedAddress {
	var out []NormalizedAddress
	seen := make(map[string]struct{}, len(r.Addresses))
	for _, a := range r.Addresses {
		n := Address(a)
		if n.Empty() {
			continue
		}
		if _, dup := seen[n.Key()]; dup {
			continue
		}
		seen[n.Key()] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Hints builds the candidate lookup keys for a record from its valid
// normalized phones, emails and last name.
func Hints(r identity.IdentityRecord) identity.QueryHints {
	return identity.QueryHints{
		Phones:   RecordPhones(r),
		Emails:   RecordEmails(r),
		LastName: RecordName(r).Last,
	}
}
