package converter

import (
	"testing"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestThingConverterToModel(t *testing.T) {
	conv := NewThingConverter()

	got := conv.ToModel(domain.NewMetadataRecord("thumb/я.png", true, "Stout"))

	assert.Equal(t, &ThingModel{ImagePath: "thumb/я.png", IsBeer: true, Style: "Stout"}, got)
	assert.Nil(t, conv.ToModel(nil))
}
