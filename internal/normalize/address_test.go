package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	t.Run("multi-part address with state and pincode", func(t *testing.T) {
		got := ParseAddress("Mahadeo Mandir Chauk, Morane Pr. Laling, Morane-laling, Dhule, Dhule, Maharashtra - 424002")

		assert.Equal(t, "424002", got.Pincode)
		assert.Equal(t, "Maharashtra", got.State)
		assert.Equal(t, "Mahadeo Mandir Chauk", got.House)
		assert.Equal(t, "Morane Pr. Laling", got.Street)
		assert.Equal(t, "Dhule", got.City)
		assert.Contains(t, got.Locality, "Morane-laling")
	})

	t.Run("three parts", func(t *testing.T) {
		got := ParseAddress("Koregaon Park, Pune, Maharashtra 411001")
		assert.Equal(t, "411001", got.Pincode)
		assert.Equal(t, "Maharashtra", got.State)
		assert.Equal(t, "Koregaon Park", got.Locality)
		assert.Equal(t, "Pune", got.City)
	})

	t.Run("two parts with trailing pincode", func(t *testing.T) {
		got := ParseAddress("Sector 17, Chandigarh 160017")
		assert.Equal(t, "160017", got.Pincode)
		assert.Equal(t, "Chandigarh", got.State)
		assert.Equal(t, "Sector 17", got.Locality)
	})

	t.Run("single part falls back to locality", func(t *testing.T) {
		got := ParseAddress("Near Old Bus Stand 560001")
		assert.Equal(t, "560001", got.Pincode)
		assert.Equal(t, "Near Old Bus Stand", got.Locality)
		assert.Empty(t, got.City)
	})

	t.Run("last six digit run is the pincode", func(t *testing.T) {
		got := ParseAddress("Plot 123456, MG Road, Bengaluru, Karnataka 560001")
		assert.Equal(t, "560001", got.Pincode)
		assert.Equal(t, "Karnataka", got.State)
	})

	t.Run("state matched case-insensitively and canonicalised", func(t *testing.T) {
		got := ParseAddress("12 Lake Road, Ballygunge, Kolkata, WEST BENGAL - 700019")
		assert.Equal(t, "West Bengal", got.State)
		assert.Equal(t, "Kolkata", got.City)
	})

	t.Run("alias maps to canonical", func(t *testing.T) {
		got := ParseAddress("Unit 4, Saheed Nagar, Bhubaneswar, Orissa 751007")
		assert.Equal(t, "Odisha", got.State)
	})

	t.Run("empty and garbage inputs never panic", func(t *testing.T) {
		assert.True(t, ParseAddress("").IsZero())
		assert.NotPanics(t, func() { ParseAddress(", , - ,") })
		assert.True(t, ParseAddress(" , ,").IsZero())
	})
}

func TestAddressString(t *testing.T) {
	a := Address{Locality: "Koregaon Park", City: "Pune", State: "Maharashtra", Pincode: "411001"}
	assert.Equal(t, "Koregaon Park, Pune, Maharashtra - 411001", a.String())
}
