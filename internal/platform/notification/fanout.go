package notification

import (
	"context"
	"errors"
)

// Fanout publishes to every member and joins their errors. A failing member
// does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, key string, payload []byte) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
