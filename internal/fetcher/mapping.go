package fetcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/normalize"
)

// Canonical lead file columns.
const (
	ColID         = "id"
	ColFirstName  = "first_name"
	ColMiddleName = "middle_name"
	ColLastName   = "last_name"
	ColSuffix     = "suffix"
	ColFullName   = "full_name"
	ColPhone      = "phone"
	ColMobile     = "mobile_phone"
	ColHomePhone  = "home_phone"
	ColWorkPhone  = "work_phone"
	ColEmail      = "email"
	ColWorkEmail  = "work_email"
	ColStreet     = "street"
	ColStreet2    = "street2"
	ColCity       = "city"
	ColState      = "state"
	ColZip        = "zip"
	ColCompany    = "company"
	ColTitle      = "title"
	ColIndustry   = "industry"
	ColWebsite    = "website"
	ColLinkedIn   = "linkedin"
	ColFacebook   = "facebook"
	ColTwitter    = "twitter"
)

type columnAlias struct {
	col   string
	names []string
}

// aliasTable lists the normalized header names accepted for each canonical
// column.
var aliasTable = []columnAlias{
	{ColID, []string{"id", "source_id", "record_id", "lead_id", "external_id"}},

	{ColFirstName, []string{"first_name", "first", "fname", "firstname", "given_name"}},
	{ColMiddleName, []string{"middle_name", "middle", "mname", "middle_initial"}},
	{ColLastName, []string{"last_name", "last", "lname", "lastname", "surname", "family_name"}},
	{ColSuffix, []string{"suffix", "name_suffix"}},
	{ColFullName, []string{"name", "full_name", "fullname", "contact_name", "owner_name"}},

	{ColPhone, []string{"phone", "phone1", "phone_1", "phone_number", "telephone", "primary_phone"}},
	{ColMobile, []string{"mobile", "mobile_phone", "cell", "cell_phone", "cellphone", "wireless"}},
	{ColHomePhone, []string{"home_phone", "landline", "phone2", "phone_2"}},
	{ColWorkPhone, []string{"work_phone", "office_phone", "business_phone", "direct_phone"}},

	{ColEmail, []string{"email", "email1", "email_1", "email_address", "e_mail", "personal_email"}},
	{ColWorkEmail, []string{"work_email", "business_email", "company_email", "email2", "email_2"}},

	{ColStreet, []string{"street", "address", "address1", "address_1", "street_address", "mailing_address", "property_address"}},
	{ColStreet2, []string{"address2", "address_2", "street2", "unit", "apt"}},
	{ColCity, []string{"city", "town"}},
	{ColState, []string{"state", "st", "province", "region"}},
	{ColZip, []string{"zip", "zipcode", "zip_code", "postal_code", "postcode", "zip5"}},

	{ColCompany, []string{"company", "company_name", "business_name", "organization", "employer"}},
	{ColTitle, []string{"title", "job_title", "position"}},
	{ColIndustry, []string{"industry"}},
	{ColWebsite, []string{"website", "company_website", "url", "domain"}},
	{ColLinkedIn, []string{"linkedin", "linkedin_url", "linkedin_profile"}},
	{ColFacebook, []string{"facebook", "facebook_url"}},
	{ColTwitter, []string{"twitter", "twitter_url", "x_handle"}},
}

// columnAliases maps normalized header names to canonical columns.
var columnAliases = indexAliases(aliasTable)

func indexAliases(table []columnAlias) map[string]string {
	out := make(map[string]string)
	for _, a := range table {
		for _, n := range a.names {
			out[n] = a.col
		}
	}
	return out
}

var identifyingColumns = []string{
	ColFirstName, ColLastName, ColFullName,
	ColPhone, ColMobile, ColHomePhone, ColWorkPhone,
	ColEmail, ColWorkEmail,
}

// ColumnMap maps canonical columns to their index in a row.
type ColumnMap map[string]int

// NewColumnMap resolves a header row against the known column aliases.
// Unknown columns are ignored; the first occurrence of a column wins. It
// fails when no name, phone or email column is present.
func NewColumnMap(header []string) (ColumnMap, error) {
	cm := make(ColumnMap)
	for i, h := range header {
		col, ok := columnAliases[headerKey(h)]
		if !ok {
			continue
		}
		if _, seen := cm[col]; !seen {
			cm[col] = i
		}
	}

	for _, col := range identifyingColumns {
		if _, ok := cm[col]; ok {
			return cm, nil
		}
	}
	return nil, eris.Errorf("fetcher: no name, phone or email column in header %v", header)
}

// Has reports whether the column is mapped.
func (cm ColumnMap) Has(col string) bool {
	_, ok := cm[col]
	return ok
}

// Get returns the trimmed value of col in row, or "" when the column is
// unmapped or the row is short.
func (cm ColumnMap) Get(row []string, col string) string {
	i, ok := cm[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// RowSource describes where rows come from.
type RowSource struct {
	Type identity.SourceType
	File string
}

// RowToRecord maps one data row to an identity record. The source ID is the
// row's id column, or the file name and 1-based row number when the row has
// none. Record IDs and storage metadata are left to the caller.
func RowToRecord(row []string, cm ColumnMap, src RowSource, rowNum int) identity.IdentityRecord {
	rec := identity.IdentityRecord{
		SourceType: src.Type,
		SourceID:   cm.Get(row, ColID),
		FirstName:  cm.Get(row, ColFirstName),
		MiddleName: cm.Get(row, ColMiddleName),
		LastName:   cm.Get(row, ColLastName),
		Suffix:     cm.Get(row, ColSuffix),
	}
	if rec.SourceID == "" {
		rec.SourceID = fmt.Sprintf("%s:%d", filepath.Base(src.File), rowNum)
	}
	if rec.FirstName == "" && rec.LastName == "" {
		var suffix string
		rec.FirstName, rec.MiddleName, rec.LastName, suffix = splitFullName(cm.Get(row, ColFullName))
		if rec.Suffix == "" {
			rec.Suffix = suffix
		}
	}

	addPhone := func(col string, t identity.PhoneType) {
		if v := cm.Get(row, col); v != "" {
			rec.Phones = append(rec.Phones, identity.Phone{Number: v, Type: t})
		}
	}
	addPhone(ColMobile, identity.PhoneMobile)
	addPhone(ColPhone, identity.PhoneUnknown)
	addPhone(ColHomePhone, identity.PhoneLandline)
	addPhone(ColWorkPhone, identity.PhoneUnknown)

	if v := cm.Get(row, ColEmail); v != "" {
		rec.Emails = append(rec.Emails, identity.Email{Address: v, Type: identity.EmailPersonal})
	}
	if v := cm.Get(row, ColWorkEmail); v != "" {
		rec.Emails = append(rec.Emails, identity.Email{Address: v, Type: identity.EmailBusiness})
	}

	addr := identity.Address{
		Street:    strings.TrimSpace(cm.Get(row, ColStreet) + " " + cm.Get(row, ColStreet2)),
		City:      cm.Get(row, ColCity),
		State:     cm.Get(row, ColState),
		Zip:       cm.Get(row, ColZip),
		Type:      identity.AddressUnknown,
		IsCurrent: true,
	}
	if !addr.Empty() {
		rec.Addresses = append(rec.Addresses, addr)
	}

	biz := identity.BusinessInfo{
		CompanyName: cm.Get(row, ColCompany),
		Title:       cm.Get(row, ColTitle),
		Industry:    cm.Get(row, ColIndustry),
		Website:     cm.Get(row, ColWebsite),
	}
	if biz != (identity.BusinessInfo{}) {
		rec.Business = &biz
	}

	for _, s := range []struct{ col, platform string }{
		{ColLinkedIn, "linkedin"},
		{ColFacebook, "facebook"},
		{ColTwitter, "twitter"},
	} {
		v := cm.Get(row, s.col)
		if v == "" {
			continue
		}
		social := identity.Social{Platform: s.platform}
		if strings.Contains(v, "/") {
			social.URL = v
		} else {
			social.Handle = strings.TrimPrefix(v, "@")
		}
		rec.Socials = append(rec.Socials, social)
	}

	return rec
}

// headerKey normalizes a header cell: lower-case with runs of other
// characters collapsed to one underscore.
func headerKey(h string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// splitFullName splits a display name in reported casing. "Last, First
// Middle" and "First Middle Last Jr" are both accepted.
func splitFullName(full string) (first, middle, last, suffix string) {
	if before, after, ok := strings.Cut(full, ","); ok {
		rest := strings.Fields(after)
		if len(rest) > 0 && !normalize.IsSuffix(strings.Join(rest, "")) {
			last = strings.TrimSpace(before)
			if n := len(rest); n > 1 && normalize.IsSuffix(rest[n-1]) {
				suffix, rest = rest[n-1], rest[:n-1]
			}
			return rest[0], strings.Join(rest[1:], " "), last, suffix
		}
		full = before
		suffix = strings.TrimSpace(after)
	}

	parts := strings.Fields(full)
	if n := len(parts); n > 1 && normalize.IsSuffix(parts[n-1]) {
		suffix, parts = parts[n-1], parts[:n-1]
	}
	switch len(parts) {
	case 0:
		return "", "", "", suffix
	case 1:
		return parts[0], "", "", suffix
	default:
		return parts[0], strings.Join(parts[1:len(parts)-1], " "), parts[len(parts)-1], suffix
	}
}
