package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bnema/openvd/internal/eventlog"
	"github.com/bnema/openvd/internal/logger"
	"github.com/bnema/openvd/libevdi"
)

// Replayer feeds a recorded event log back through the native callback
// table. Each recorded display index gets its own Display without a node,
// so handlers see exactly what they saw when the log was recorded.
type Replayer struct {
	// Speed scales the recorded delays; zero or less replays without delay
	Speed    float64
	Observer Observer

	displays map[int]*Display
	contexts map[int]*libevdi.EventContext
}

// NewReplayer creates a Replayer. libevdi.Register must have been called.
func NewReplayer(speed float64, observer Observer) *Replayer {
	return &Replayer{
		Speed:    speed,
		Observer: observer,
		displays: make(map[int]*Display),
		contexts: make(map[int]*libevdi.EventContext),
	}
}

// Run replays every record from r and returns how many were delivered
func (rp *Replayer) Run(ctx context.Context, r *eventlog.Reader) (int, error) {
	var (
		count int
		prev  time.Time
	)

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		if err := rp.wait(ctx, prev, rec.Time); err != nil {
			return count, err
		}
		prev = rec.Time

		if rec.Event == nil {
			libevdi.EmitLog(rec.Log)
			count++
			continue
		}

		ec, err := rp.context(rec.Display)
		if err != nil {
			return count, err
		}
		if err := ec.Emit(rec.Event); err != nil {
			return count, fmt.Errorf("replay %s event: %w", rec.Event.Kind(), err)
		}
		count++
	}
}

// Displays returns the displays created so far, keyed by recorded index
func (rp *Replayer) Displays() map[int]*Display {
	out := make(map[int]*Display, len(rp.displays))
	for i, d := range rp.displays {
		out[i] = d
	}
	return out
}

// Close releases every event context
func (rp *Replayer) Close() error {
	var errs []error
	for i, ec := range rp.contexts {
		if err := ec.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(rp.contexts, i)
	}
	return errors.Join(errs...)
}

func (rp *Replayer) context(index int) (*libevdi.EventContext, error) {
	if ec, ok := rp.contexts[index]; ok {
		return ec, nil
	}

	d := New(index, fmt.Sprintf("replay-%d", index), nil, nil, rp.Observer)
	ec, err := libevdi.NewEventContext(d)
	if err != nil {
		return nil, err
	}

	logger.Debug("Replaying display", "index", index)
	rp.displays[index] = d
	rp.contexts[index] = ec
	return ec, nil
}

func (rp *Replayer) wait(ctx context.Context, prev, next time.Time) error {
	if rp.Speed <= 0 || prev.IsZero() || !next.After(prev) {
		return ctx.Err()
	}

	delay := time.Duration(float64(next.Sub(prev)) / rp.Speed)
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
