package e

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Ошибки валидации входящего сообщения
	ErrMalformedPayload  = fmt.Errorf("malformed classification payload")
	ErrImagePathRequired = fmt.Errorf("thumbName is required")
	ErrIsBeerRequired    = fmt.Errorf("isBeer is required")
	ErrInvalidFieldType  = fmt.Errorf("invalid field type")
	ErrFieldTooLong      = fmt.Errorf("field exceeds column size")

	// Ошибки секрета и подключения
	ErrSecretNotFound   = fmt.Errorf("secret not found")
	ErrInvalidSecret    = fmt.Errorf("invalid secret payload")
	ErrConnectionClosed = fmt.Errorf("connection manager closed")

	// Ошибки конфигурации
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")

	// Ошибки ops-интерфейса
	ErrStatusBadRequest    = fmt.Errorf("bad request")
	ErrInternalServerError = fmt.Errorf("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// ValidationError — терминальная ошибка: сообщение невалидно, повторная доставка не поможет.
type ValidationError struct {
	Err error
}

func NewValidationError(err error) error {
	return &ValidationError{Err: err}
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("validation: %v", v.Err)
}

func (v *ValidationError) Unwrap() error {
	return v.Err
}

// BootstrapError — ошибка получения секрета или установки соединения. Повторяемая.
type BootstrapError struct {
	Err error
}

func NewBootstrapError(err error) error {
	return &BootstrapError{Err: err}
}

func (b *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap: %v", b.Err)
}

func (b *BootstrapError) Unwrap() error {
	return b.Err
}

// StoreUnavailableError — временная ошибка хранилища метаданных. Повторяемая.
type StoreUnavailableError struct {
	Err error
}

func NewStoreUnavailableError(err error) error {
	return &StoreUnavailableError{Err: err}
}

func (s *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", s.Err)
}

func (s *StoreUnavailableError) Unwrap() error {
	return s.Err
}

// IsTerminal сообщает, что повторная доставка сообщения не изменит результат.
func IsTerminal(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRetryable сообщает, что ошибка временная и сообщение нужно доставить повторно.
// Истечение бюджета обработки тоже считается повторяемой ошибкой.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}

	var (
		b *BootstrapError
		s *StoreUnavailableError
	)
	if errors.As(err, &b) || errors.As(err, &s) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
