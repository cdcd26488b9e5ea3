package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/DRSN-tech/image-metadata/pkg/e"
)

const (
	// Размеры колонок таблицы things
	MaxImagePathLen = 255
	MaxStyleLen     = 50
)

// ClassificationMessage — результат классификации изображения, доставляемый воркеру.
type ClassificationMessage struct {
	ImagePath string
	IsBeer    bool
	Style     string // пусто, если IsBeer == false
}

// classificationPayload — форма сообщения на проводе.
// Поле key относится к контракту resize-воркера и игнорируется.
type classificationPayload struct {
	ThumbName *string `json:"thumbName"`
	IsBeer    *bool   `json:"isBeer"`
	Style     *string `json:"style"`
}

// ParseClassificationMessage разбирает и валидирует JSON-сообщение классификатора.
// Любая ошибка — терминальная (*e.ValidationError).
func ParseClassificationMessage(raw []byte) (*ClassificationMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, e.NewValidationError(e.ErrMalformedPayload)
	}

	var payload classificationPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, e.NewValidationError(fmt.Errorf("%w: %s must not be %s", e.ErrInvalidFieldType, typeErr.Field, typeErr.Value))
		}
		return nil, e.NewValidationError(fmt.Errorf("%w: %v", e.ErrMalformedPayload, err))
	}

	if payload.ThumbName == nil || strings.TrimSpace(*payload.ThumbName) == "" {
		return nil, e.NewValidationError(e.ErrImagePathRequired)
	}
	if payload.IsBeer == nil {
		return nil, e.NewValidationError(e.ErrIsBeerRequired)
	}

	// imagePath — естественный ключ, сохраняется как есть
	msg := NewClassificationMessage(*payload.ThumbName, *payload.IsBeer, payload.Style)
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

// NewClassificationMessage нормализует стиль: без пива стиля нет.
func NewClassificationMessage(imagePath string, isBeer bool, style *string) *ClassificationMessage {
	msg := &ClassificationMessage{
		ImagePath: imagePath,
		IsBeer:    isBeer,
	}
	if isBeer && style != nil {
		msg.Style = *style
	}

	return msg
}

// Validate проверяет ограничения хранилища. VARCHAR(n) ограничивает символы, не байты.
func (m *ClassificationMessage) Validate() error {
	if m.ImagePath == "" {
		return e.NewValidationError(e.ErrImagePathRequired)
	}
	if n := utf8.RuneCountInString(m.ImagePath); n > MaxImagePathLen {
		return e.NewValidationError(fmt.Errorf("%w: thumbName is %d characters, max %d", e.ErrFieldTooLong, n, MaxImagePathLen))
	}
	if n := utf8.RuneCountInString(m.Style); n > MaxStyleLen {
		return e.NewValidationError(fmt.Errorf("%w: style is %d characters, max %d", e.ErrFieldTooLong, n, MaxStyleLen))
	}

	return nil
}

// ToRecord превращает сообщение в запись хранилища.
func (m *ClassificationMessage) ToRecord() *MetadataRecord {
	return NewMetadataRecord(m.ImagePath, m.IsBeer, m.Style)
}
