package converter

import "github.com/DRSN-tech/image-metadata/internal/usecase"

type DeadLetterConverter interface {
	ToRedisModel(entity *usecase.DeadLetter) *DeadLetterRedisModel
	ToUseCase(model *DeadLetterRedisModel) *usecase.DeadLetter
}

type deadLetterConverter struct{}

func NewDeadLetterConverter() DeadLetterConverter {
	return deadLetterConverter{}
}

func (deadLetterConverter) ToRedisModel(entity *usecase.DeadLetter) *DeadLetterRedisModel {
	return &DeadLetterRedisModel{
		ID:        entity.ID,
		Source:    entity.Source,
		MessageID: entity.MessageID,
		Payload:   string(entity.Payload),
		Reason:    entity.Reason,
		Error:     entity.Error,
		Terminal:  entity.Terminal,
		Attempts:  entity.Attempts,
		FailedAt:  entity.FailedAt,
	}
}

func (deadLetterConverter) ToUseCase(model *DeadLetterRedisModel) *usecase.DeadLetter {
	return &usecase.DeadLetter{
		ID:        model.ID,
		Source:    model.Source,
		MessageID: model.MessageID,
		Payload:   []byte(model.Payload),
		Reason:    model.Reason,
		Error:     model.Error,
		Terminal:  model.Terminal,
		Attempts:  model.Attempts,
		FailedAt:  model.FailedAt,
	}
}
