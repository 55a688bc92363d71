package models

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// Лимит биржи на длину clientOrderId.
	MaxClientOrderIDLen = 36

	basketIDLen = 14

	SlotTP1       = "TP1"
	SlotTP2       = "TP2"
	SlotTrail     = "TRAIL"
	SlotEmergency = "EMERGENCY"
)

// NewBasketID возвращает короткий сортируемый идентификатор корзины:
// UUIDv7 в base62, усечённый до 14 символов. Старшие символы кодируют
// миллисекундную метку времени, поэтому порядок создания сохраняется.
func NewBasketID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	encoded := new(big.Int).SetBytes(id[:]).Text(62)
	// Text(62) пишет цифры 10–35 строчными, 36–61 заглавными. Обмен регистра
	// ставит алфавит в порядок ASCII, и сравнение строк совпадает с числовым.
	encoded = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		}
		return r
	}, encoded)
	if len(encoded) > basketIDLen {
		return encoded[:basketIDLen]
	}
	return encoded
}

func BuyClientID(pair, basketID string, level int) string {
	return fmt.Sprintf("%s_%s_B_%d", pair, basketID, level)
}

func SellClientID(pair, basketID, slot string) string {
	return fmt.Sprintf("%s_%s_S_%s", pair, basketID, slot)
}

// BelongsToBasket проверяет, что clientOrderId принадлежит пространству
// имён данной корзины.
func BelongsToBasket(clientID, pair, basketID string) bool {
	prefix := pair + "_" + basketID + "_"
	if !strings.HasPrefix(clientID, prefix) {
		return false
	}
	rest := clientID[len(prefix):]
	side, slot, ok := strings.Cut(rest, "_")
	if !ok || (side != "B" && side != "S") {
		return false
	}
	if side == "B" {
		n, err := strconv.Atoi(slot)
		return err == nil && n >= 1
	}
	switch slot {
	case SlotTP1, SlotTP2, SlotTrail, SlotEmergency:
		return true
	}
	return false
}

// ValidateIDSpace убеждается, что самый длинный clientOrderId корзины
// помещается в лимит биржи.
func ValidateIDSpace(pair, basketID string) error {
	longest := SellClientID(pair, basketID, SlotEmergency)
	if len(longest) > MaxClientOrderIDLen {
		return fmt.Errorf("Идентификатор ордера превышает лимит биржи: %q (%d > %d)", longest, len(longest), MaxClientOrderIDLen)
	}
	return nil
}
