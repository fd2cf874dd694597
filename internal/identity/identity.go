// Package identity defines the identity observation types shared by the
// normalizer, matcher, resolution policy and lead-card generator.
package identity

import (
	"strings"
	"time"
)

// SourceType identifies the kind of provider an observation came from.
type SourceType string

// Known source types.
const (
	SourceBusiness  SourceType = "business"
	SourceProperty  SourceType = "property"
	SourceConsumer  SourceType = "consumer"
	SourceSkiptrace SourceType = "skiptrace"
	SourceApollo    SourceType = "apollo"
	SourceManual    SourceType = "manual"
	SourceImport    SourceType = "import"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceBusiness, SourceProperty, SourceConsumer, SourceSkiptrace,
		SourceApollo, SourceManual, SourceImport:
		return true
	}
	return false
}

// PhoneType classifies a phone line.
type PhoneType string

// Phone types.
const (
	PhoneMobile   PhoneType = "mobile"
	PhoneLandline PhoneType = "landline"
	PhoneVOIP     PhoneType = "voip"
	PhoneUnknown  PhoneType = "unknown"
)

// ParsePhoneType maps provider labels onto a PhoneType.
func ParsePhoneType(s string) PhoneType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mobile", "cell", "cellular", "wireless":
		return PhoneMobile
	case "landline", "land", "home", "fixed", "residential":
		return PhoneLandline
	case "voip":
		return PhoneVOIP
	default:
		return PhoneUnknown
	}
}

// EmailType classifies an email address.
type EmailType string

// Email types.
const (
	EmailPersonal EmailType = "personal"
	EmailBusiness EmailType = "business"
	EmailUnknown  EmailType = "unknown"
)

// ParseEmailType maps provider labels onto an EmailType.
func ParseEmailType(s string) EmailType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "personal", "home", "private":
		return EmailPersonal
	case "business", "work", "professional":
		return EmailBusiness
	default:
		return EmailUnknown
	}
}

// AddressType classifies a postal address.
type AddressType string

// Address types.
const (
	AddressResidential AddressType = "residential"
	AddressCommercial  AddressType = "commercial"
	AddressMailing     AddressType = "mailing"
	AddressUnknown     AddressType = "unknown"
)

// ParseAddressType maps provider labels onto an AddressType.
func ParseAddressType(s string) AddressType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "residential", "home":
		return AddressResidential
	case "commercial", "business", "office":
		return AddressCommercial
	case "mailing", "mail", "po":
		return AddressMailing
	default:
		return AddressUnknown
	}
}

// Phone is a phone number as reported by a source. Number is the original
// text; the normalized form is derived on demand.
type Phone struct {
	Number    string    `json:"number"`
	Type      PhoneType `json:"type"`
	IsPrimary bool      `json:"is_primary"`
	Source    string    `json:"source,omitempty"`
}

// Email is an email address as reported by a source.
type Email struct {
	Address   string    `json:"address"`
	Type      EmailType `json:"type"`
	IsPrimary bool      `json:"is_primary"`
	Source    string    `json:"source,omitempty"`
}

// Address is a postal address as reported by a source.
type Address struct {
	Street    string      `json:"street,omitempty"`
	City      string      `json:"city,omitempty"`
	State     string      `json:"state,omitempty"`
	Zip       string      `json:"zip,omitempty"`
	Type      AddressType `json:"type"`
	IsCurrent bool        `json:"is_current"`
	Source    string      `json:"source,omitempty"`
}

// Empty reports whether every location component is blank.
func (a Address) Empty() bool {
	return strings.TrimSpace(a.Street) == "" && strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.State) == "" && strings.TrimSpace(a.Zip) == ""
}

// Social is a social profile reference.
type Social struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle,omitempty"`
	URL      string `json:"url,omitempty"`
	Source   string `json:"source,omitempty"`
}

// BusinessInfo carries employer details reported by B2B sources.
type BusinessInfo struct {
	CompanyName string `json:"company_name,omitempty"`
	Title       string `json:"title,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty"`
}

// PropertyInfo carries parcel details reported by property sources.
type PropertyInfo struct {
	Street         string `json:"street,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	Zip            string `json:"zip,omitempty"`
	OwnerOccupied  *bool  `json:"owner_occupied,omitempty"`
	EstimatedValue *int64 `json:"estimated_value,omitempty"`
}

// IdentityRecord is one observation of a person or entity from one source.
// Records are treated as immutable by the matcher and resolution policy.
type IdentityRecord struct { //nolint:revive // stutters but reads better at call sites
	ID         string     `json:"id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`

	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	Suffix     string `json:"suffix,omitempty"`

	Phones    []Phone   `json:"phones,omitempty"`
	Emails    []Email   `json:"emails,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
	Socials   []Social  `json:"socials,omitempty"`

	Business *BusinessInfo `json:"business,omitempty"`
	Property *PropertyInfo `json:"property,omitempty"`

	// Storage metadata.
	CardID    string    `json:"card_id,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceKey returns the key that uniquely identifies the originating observation.
func (r IdentityRecord) SourceKey() string {
	return string(r.SourceType) + ":" + r.SourceID
}

// MatchType describes how a field comparison matched.
type MatchType string

// Match types.
const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchPartial  MatchType = "partial"
	MatchPhonetic MatchType = "phonetic"
	MatchNone     MatchType = "none"
)

// Confidence buckets an overall match score against the policy thresholds.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Field names used in match details and merge updates.
const (
	FieldName       = "name"
	FieldPhone      = "phone"
	FieldEmail      = "email"
	FieldAddress    = "address"
	FieldFirstName  = "first_name"
	FieldMiddleName = "middle_name"
	FieldLastName   = "last_name"
	FieldSuffix     = "suffix"
)

// MatchDetail is one scored field comparison.
type MatchDetail struct {
	Field       string    `json:"field"`
	SourceValue string    `json:"source_value"`
	TargetValue string    `json:"target_value"`
	Score       float64   `json:"score"`
	MatchType   MatchType `json:"match_type"`
	Weight      float64   `json:"weight"`
}

// IdentityMatchResult is the outcome of comparing two records.
type IdentityMatchResult struct { //nolint:revive // stutters but reads better at call sites
	SourceID     string        `json:"source_id"`
	TargetID     string        `json:"target_id"`
	OverallScore float64       `json:"overall_score"`
	ShouldMerge  bool          `json:"should_merge"`
	MatchDetails []MatchDetail `json:"match_details"`
	Confidence   Confidence    `json:"confidence"`
}

// Detail returns the match detail for field, if present.
func (r IdentityMatchResult) Detail(field string) (MatchDetail, bool) {
	for _, d := range r.MatchDetails {
		if d.Field == field {
			return d, true
		}
	}
	return MatchDetail{}, false
}

// QueryHints are the cheap lookup keys handed to the candidate store.
// All values are already normalized.
type QueryHints struct {
	Phones   []string `json:"phones,omitempty"`
	Emails   []string `json:"emails,omitempty"`
	LastName string   `json:"last_name,omitempty"`
}

// Empty reports whether there is nothing to search on.
func (h QueryHints) Empty() bool {
	return len(h.Phones) == 0 && len(h.Emails) == 0 && h.LastName == ""
}
