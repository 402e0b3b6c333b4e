package audit

import (
	"context"
	"errors"
)

// FanOut appends each event to every sink. All sinks are attempted even when
// one fails; failures are joined.
type FanOut []Appender

func (f FanOut) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
