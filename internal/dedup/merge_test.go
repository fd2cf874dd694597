package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-identity/internal/identity"
)

func TestPlanMerge_NeverOverwrites(t *testing.T) {
	target := identity.IdentityRecord{
		FirstName: "Robert",
		LastName:  "Smith",
		Phones:    []identity.Phone{{Number: "5551234567"}},
		Emails:    []identity.Email{{Address: "rob@acme.io"}},
		Addresses: []identity.Address{{Street: "1 Elm St", City: "Austin", State: "TX"}},
	}
	incoming := identity.IdentityRecord{
		FirstName: "Bob",
		LastName:  "Smyth",
		Phones:    []identity.Phone{{Number: "3125557100"}},
		Emails:    []identity.Email{{Address: "bob@acme.io"}},
		Addresses: []identity.Address{{Street: "9 Oak Ave"}},
	}

	assert.Empty(t, PlanMerge(target, incoming, "consumer:1", t0))
}

func TestPlanMerge_FillsEmpty(t *testing.T) {
	target := identity.IdentityRecord{
		LastName: "Smith",
		// Only a placeholder phone: treated as empty.
		Phones: []identity.Phone{{Number: "555-555-5555"}},
	}
	incoming := identity.IdentityRecord{
		FirstName: " Robert ",
		LastName:  "Smith",
		Suffix:    "Jr",
		Phones:    []identity.Phone{{Number: "3125557100", Type: identity.PhoneMobile}, {Number: "123"}},
		Addresses: []identity.Address{{}, {Street: "1 Elm St", City: "Austin"}},
	}

	updates := PlanMerge(target, incoming, "skiptrace:9", t0)
	require.Len(t, updates, 4)
	assert.Equal(t, FieldUpdate{Field: identity.FieldFirstName, Value: "Robert", Source: "skiptrace:9", WrittenAt: t0}, updates[0])
	assert.Equal(t, identity.FieldSuffix, updates[1].Field)
	assert.Equal(t, []identity.Phone{{Number: "3125557100", Type: identity.PhoneMobile}}, updates[2].Phones)
	assert.Equal(t, []identity.Address{{Street: "1 Elm St", City: "Austin"}}, updates[3].Addresses)

	merged := ApplyUpdates(target, updates)
	assert.Equal(t, "Robert", merged.FirstName)
	assert.Equal(t, "Jr", merged.Suffix)
	assert.Len(t, merged.Phones, 2)
	assert.Len(t, merged.Addresses, 1)
	// target is untouched
	assert.Len(t, target.Phones, 1)
	assert.Empty(t, target.FirstName)
}

func TestFieldUpdate_DisplayValue(t *testing.T) {
	assert.Equal(t, "Robert", FieldUpdate{Field: identity.FieldFirstName, Value: "Robert"}.DisplayValue())
	assert.Equal(t, "1; 2", FieldUpdate{Field: identity.FieldPhone, Phones: []identity.Phone{{Number: "1"}, {Number: "2"}}}.DisplayValue())
	assert.Equal(t, "a@b.io", FieldUpdate{Field: identity.FieldEmail, Emails: []identity.Email{{Address: "a@b.io"}}}.DisplayValue())
	assert.Equal(t, "1 Elm St, Austin, TX 78701", FieldUpdate{
		Field:     identity.FieldAddress,
		Addresses: []identity.Address{{Street: "1 Elm St", City: "Austin", State: "TX", Zip: "78701"}},
	}.DisplayValue())
}

func TestDecisionKinds(t *testing.T) {
	var d Decision = CreateNew{}
	assert.Equal(t, KindCreateNew, d.Kind())
	d = AutoMerge{}
	assert.Equal(t, KindAutoMerge, d.Kind())
	d = ReviewRequired{}
	assert.Equal(t, KindReviewRequired, d.Kind())
}
