package models

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBasketID(t *testing.T) {
	seen := map[string]bool{}
	valid := regexp.MustCompile(`^[A-Za-z0-9]+$`)

	for i := 0; i < 1000; i++ {
		id := NewBasketID()
		assert.LessOrEqual(t, len(id), 14)
		assert.NotEmpty(t, id)
		assert.True(t, valid.MatchString(id), "недопустимые символы в %q", id)
		assert.False(t, seen[id], "повтор идентификатора %q", id)
		seen[id] = true
	}
}

func TestClientIDGrammar(t *testing.T) {
	assert.Equal(t, "SOLUSDC_b1_B_3", BuyClientID("SOLUSDC", "b1", 3))
	assert.Equal(t, "SOLUSDC_b1_S_TP1", SellClientID("SOLUSDC", "b1", SlotTP1))
	assert.Equal(t, "SOLUSDC_b1_S_EMERGENCY", SellClientID("SOLUSDC", "b1", SlotEmergency))
}

func TestClientIDFitsVenueLimit(t *testing.T) {
	id := NewBasketID()
	require.NoError(t, ValidateIDSpace("SOLUSDC", id))

	longest := SellClientID("SOLUSDC", id, SlotEmergency)
	assert.LessOrEqual(t, len(longest), MaxClientOrderIDLen)
}

func TestValidateIDSpaceRejectsLongPair(t *testing.T) {
	assert.Error(t, ValidateIDSpace("VERYLONGPAIRUSDC", "0123456789abcd"))
}

func TestBelongsToBasket(t *testing.T) {
	cases := []struct {
		clientID string
		want     bool
	}{
		{"SOLUSDC_b1_B_1", true},
		{"SOLUSDC_b1_B_12", true},
		{"SOLUSDC_b1_S_TP1", true},
		{"SOLUSDC_b1_S_TP2", true},
		{"SOLUSDC_b1_S_TRAIL", true},
		{"SOLUSDC_b1_S_EMERGENCY", true},
		{"SOLUSDC_b2_B_1", false},
		{"BTCUSDC_b1_B_1", false},
		{"SOLUSDC_b1_X_1", false},
		{"SOLUSDC_b1_S_WRONG", false},
		{"SOLUSDC_b1_B_0", false},
		{"SOLUSDC_b1_B_x", false},
		{"manual-order-42", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BelongsToBasket(tc.clientID, "SOLUSDC", "b1"), tc.clientID)
	}
}
