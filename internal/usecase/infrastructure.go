package usecase

import "context"

type DeadLetterSink interface {
	Send(ctx context.Context, letter *DeadLetter) error
}
