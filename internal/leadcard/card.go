// Package leadcard builds the unified lead card: one deduplicated,
// ranked view of everything known about an identity across its records.
package leadcard

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/normalize"
)

// State is the lifecycle state of a card. Cards are created active and are
// never deleted.
type State string

// Card states.
const (
	StateActive State = "active"
)

// EnrichmentStatus summarises how complete a card's contact data is.
type EnrichmentStatus string

// Enrichment statuses.
const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentPartial  EnrichmentStatus = "partial"
	EnrichmentComplete EnrichmentStatus = "complete"
)

// PersonIdentity is the display identity of a card, in reported casing.
type PersonIdentity struct {
	FirstName   string `json:"first_name,omitempty"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Suffix      string `json:"suffix,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// EnrichmentState tracks which sources have contributed to a card.
type EnrichmentState struct {
	Status         EnrichmentStatus `json:"status"`
	Sources        []string         `json:"sources,omitempty"`
	RecordCount    int              `json:"record_count"`
	LastEnrichedAt time.Time        `json:"last_enriched_at"`
}

// CampaignAssignment links a card to an outreach campaign.
type CampaignAssignment struct {
	CampaignID string    `json:"campaign_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// UnifiedLeadCard is the merged view of one identity.
type UnifiedLeadCard struct {
	ID     string         `json:"id"`
	State  State          `json:"state"`
	Person PersonIdentity `json:"person"`

	Phones    []CardPhone   `json:"phones,omitempty"`
	Emails    []CardEmail   `json:"emails,omitempty"`
	Addresses []CardAddress `json:"addresses,omitempty"`
	Socials   []CardSocial  `json:"socials,omitempty"`

	PrimaryPhone   *CardPhone   `json:"primary_phone,omitempty"`
	PrimaryEmail   *CardEmail   `json:"primary_email,omitempty"`
	PrimaryAddress *CardAddress `json:"primary_address,omitempty"`
	PrimarySocial  *CardSocial  `json:"primary_social,omitempty"`

	Business *identity.BusinessInfo `json:"business,omitempty"`
	Property *identity.PropertyInfo `json:"property,omitempty"`

	Enrichment EnrichmentState     `json:"enrichment"`
	Campaign   *CampaignAssignment `json:"campaign,omitempty"`

	RecordIDs []string  `json:"record_ids"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active card from its first record.
func New(id string, rec identity.IdentityRecord, now time.Time) UnifiedLeadCard {
	card := UnifiedLeadCard{
		ID:         id,
		State:      StateActive,
		Enrichment: EnrichmentState{Status: EnrichmentPending},
		CreatedAt:  now,
	}
	return MergeIntoCard(card, rec, now)
}

// MergeIntoCard folds rec into card and returns the updated card. Channels
// are appended, deduplicated and ranked, primaries are re-selected and the
// display name is re-derived. The input card is not modified.
func MergeIntoCard(card UnifiedLeadCard, rec identity.IdentityRecord, now time.Time) UnifiedLeadCard {
	out := card.clone()

	phones := slices.Clone(out.Phones)
	for _, p := range rec.Phones {
		n, ok := normalize.Phone(p.Number)
		if !ok {
			continue
		}
		phones = append(phones, CardPhone{Phone: p, Normalized: n, Seen: seenAt(sourceOf(p.Source, rec), now)})
	}
	out.Phones = Dedupe(phones, phoneKey)

	emails := slices.Clone(out.Emails)
	for _, e := range rec.Emails {
		n, ok := normalize.Email(e.Address)
		if !ok {
			continue
		}
		emails = append(emails, CardEmail{Email: e, Normalized: n, Seen: seenAt(sourceOf(e.Source, rec), now)})
	}
	out.Emails = Dedupe(emails, emailKey)

	addrs := slices.Clone(out.Addresses)
	for _, a := range rec.Addresses {
		n := normalize.Address(a)
		if n.Empty() {
			continue
		}
		addrs = append(addrs, CardAddress{Address: a, Normalized: n, Seen: seenAt(sourceOf(a.Source, rec), now)})
	}
	out.Addresses = Dedupe(addrs, addressKey)

	socials := slices.Clone(out.Socials)
	for _, s := range rec.Socials {
		socials = append(socials, CardSocial{Social: s, Seen: seenAt(sourceOf(s.Source, rec), now)})
	}
	out.Socials = Dedupe(socials, socialKey)

	out.selectPrimaries()
	out.Person = pickPerson(out.Person, rec)

	if out.Business == nil && rec.Business != nil {
		b := *rec.Business
		out.Business = &b
	}
	if out.Property == nil && rec.Property != nil {
		p := *rec.Property
		out.Property = &p
	}

	if rec.ID != "" && !slices.Contains(out.RecordIDs, rec.ID) {
		out.RecordIDs = append(out.RecordIDs, rec.ID)
	}

	out.Enrichment.Sources = unionStrings(out.Enrichment.Sources, []string{string(rec.SourceType)})
	out.Enrichment.RecordCount = len(out.RecordIDs)
	out.Enrichment.LastEnrichedAt = now
	out.Enrichment.Status = out.enrichmentStatus()

	if out.State == "" {
		out.State = StateActive
	}
	out.UpdatedAt = now
	return out
}

// Assign records a campaign assignment on a copy of card.
func Assign(card UnifiedLeadCard, campaignID string, now time.Time) UnifiedLeadCard {
	out := card.clone()
	out.Campaign = &CampaignAssignment{CampaignID: campaignID, AssignedAt: now}
	out.UpdatedAt = now
	return out
}

// selectPrimaries re-derives the primary pointers from the ranked channels.
// Source-reported IsPrimary flags on the channel entries are left as reported.
func (c *UnifiedLeadCard) selectPrimaries() {
	c.PrimaryPhone, c.PrimaryEmail, c.PrimaryAddress, c.PrimarySocial = nil, nil, nil, nil

	if p, ok := SelectPrimaryPhone(c.Phones); ok {
		c.PrimaryPhone = &p
	}
	if e, ok := SelectPrimaryEmail(c.Emails); ok {
		c.PrimaryEmail = &e
	}
	if a, ok := SelectPrimaryAddress(c.Addresses); ok {
		c.PrimaryAddress = &a
	}
	if s, ok := SelectPrimarySocial(c.Socials); ok {
		c.PrimarySocial = &s
	}
}

func (c *UnifiedLeadCard) enrichmentStatus() EnrichmentStatus {
	hasName := c.Person.DisplayName != ""
	switch {
	case hasName && len(c.Phones) > 0 && len(c.Emails) > 0 && len(c.Addresses) > 0:
		return EnrichmentComplete
	case len(c.Phones) > 0 || len(c.Emails) > 0 || len(c.Addresses) > 0:
		return EnrichmentPartial
	default:
		return EnrichmentPending
	}
}

func (c UnifiedLeadCard) clone() UnifiedLeadCard {
	out := c
	out.Phones = slices.Clone(c.Phones)
	out.Emails = slices.Clone(c.Emails)
	out.Addresses = slices.Clone(c.Addresses)
	out.Socials = slices.Clone(c.Socials)
	out.RecordIDs = slices.Clone(c.RecordIDs)
	out.Enrichment.Sources = slices.Clone(c.Enrichment.Sources)
	if c.Campaign != nil {
		campaign := *c.Campaign
		out.Campaign = &campaign
	}
	return out
}

// pickPerson keeps the longer of the existing and offered first+last name;
// ties keep the existing name.
func pickPerson(current PersonIdentity, rec identity.IdentityRecord) PersonIdentity {
	offered := PersonIdentity{
		FirstName:  strings.TrimSpace(rec.FirstName),
		MiddleName: strings.TrimSpace(rec.MiddleName),
		LastName:   strings.TrimSpace(rec.LastName),
		Suffix:     strings.TrimSpace(rec.Suffix),
	}
	offered.DisplayName = strings.TrimSpace(offered.FirstName + " " + offered.LastName)
	if utf8.RuneCountInString(offered.DisplayName) > utf8.RuneCountInString(current.DisplayName) {
		return offered
	}
	return current
}

func seenAt(source string, now time.Time) Seen {
	return Seen{Sources: []string{source}, FirstSeen: now, LastSeen: now}
}

func sourceOf(reported string, rec identity.IdentityRecord) string {
	if s := strings.TrimSpace(reported); s != "" {
		return s
	}
	return string(rec.SourceType)
}
