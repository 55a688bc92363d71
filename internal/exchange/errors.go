package exchange

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Коды биржи, на которые завязана логика исполнителя.
	CodeDuplicateOrder = -2010
	CodeUnknownOrder   = -2013
)

// APIError — ошибка из конверта биржи {code, msg}.
type APIError struct {
	Code int64
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Ошибка биржи: %s (code=%d)", e.Msg, e.Code)
}

// DecodeError — биржа вернула ответ, который не удалось разобрать.
// Считается временной ошибкой.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Не удалось разобрать ответ биржи: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// ValidationError — ордер отклонён локальной проверкой фильтров,
// до биржи запрос не дошёл.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "Ордер не прошёл проверку фильтров: " + strings.Join(e.Reasons, "; ")
}

func IsDuplicateOrder(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeDuplicateOrder
}

func IsUnknownOrder(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeUnknownOrder
}
