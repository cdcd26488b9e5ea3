package converter

import "github.com/DRSN-tech/image-metadata/internal/domain"

// ThingConverter преобразует MetadataRecord в модель PostgreSQL. Воркер только пишет,
// поэтому обратного преобразования нет.
type ThingConverter interface {
	ToModel(entity *domain.MetadataRecord) *ThingModel
}

type thingConverter struct{}

func NewThingConverter() ThingConverter {
	return thingConverter{}
}

func (thingConverter) ToModel(entity *domain.MetadataRecord) *ThingModel {
	if entity == nil {
		return nil
	}

	return &ThingModel{
		ImagePath: entity.ImagePath,
		IsBeer:    entity.IsBeer,
		Style:     entity.Style,
	}
}
