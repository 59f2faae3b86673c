package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusPending, StatusProcessing},
		{StatusProcessing, StatusShipped},
		{StatusShipped, StatusDelivered},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusCancelled},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]Status{
		{StatusDelivered, StatusCancelled},
		{StatusShipped, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusPending, StatusShipped},
		{StatusPending, StatusPending},
		{StatusDelivered, StatusProcessing},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.False(t, Status("lost").Valid())
}

func TestShippingAddress_Validate(t *testing.T) {
	ok := ShippingAddress{Name: " Rahim ", Phone: "+880 1711-000000", Line1: "House 4, Road 2"}.Normalize()
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "01711000000", ok.Phone)
	assert.Equal(t, "Rahim", ok.Name)

	cases := map[string]ShippingAddress{
		"no name":   {Phone: "01711000000", Line1: "x"},
		"no line":   {Name: "a", Phone: "01711000000"},
		"no phone":  {Name: "a", Line1: "x"},
		"bad phone": {Name: "a", Phone: "01211000000", Line1: "x"},
		"landline":  {Name: "a", Phone: "029111111", Line1: "x"},
	}
	for name, a := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, a.Normalize().Validate(), ErrInvalidAddress)
		})
	}
}
