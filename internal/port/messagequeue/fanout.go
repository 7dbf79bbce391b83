package messagequeue

import (
	"context"
	"errors"
)

// Fanout publishes every message to each of its publishers in order. One
// publisher failing does not stop delivery to the rest.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
