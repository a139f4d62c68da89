package container

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/rs/zerolog/log"

	"abwart/internal/domain"
)

// minBackoff and maxBackoff bound the event-stream reconnect delay
// (spec.md §7's "exponential backoff, cap ~30s").
const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Events streams container lifecycle events, reconnecting with exponential
// backoff on stream errors. The channel is closed only when ctx is done.
func (e *DockerEngine) Events(ctx context.Context) (<-chan domain.ContainerEvent, <-chan error) {
	out := make(chan domain.ContainerEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		backoff := minBackoff
		for {
			if ctx.Err() != nil {
				return
			}
			if err := e.streamOnce(ctx, out); err != nil {
				log.Warn().Err(err).Dur("backoff", backoff).Msg("container event stream dropped, reconnecting")
				select {
				case errs <- err:
				default:
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			// Clean shutdown via ctx cancellation.
			return
		}
	}()

	return out, errs
}

// streamOnce opens one events subscription and translates messages until
// the stream ends or errors.
func (e *DockerEngine) streamOnce(ctx context.Context, out chan<- domain.ContainerEvent) error {
	msgs, errCh := e.client.Events(ctx, events.ListOptions{})

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			return err
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if msg.Type != events.ContainerEventType {
				continue
			}
			ev, ok := translateEvent(msg)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func translateEvent(msg events.Message) (domain.ContainerEvent, bool) {
	var kind domain.ContainerEventKind
	switch msg.Action {
	case events.ActionStart:
		kind = domain.ContainerStart
	case events.ActionStop, events.ActionKill, events.ActionDie:
		kind = domain.ContainerStop
	case events.ActionDestroy:
		kind = domain.ContainerDestroy
	case events.ActionUpdate:
		kind = domain.ContainerUpdate
	default:
		return domain.ContainerEvent{}, false
	}

	name := msg.Actor.Attributes["name"]
	labels := make(map[string]string, len(msg.Actor.Attributes))
	for k, v := range msg.Actor.Attributes {
		if k == "name" || k == "image" {
			continue
		}
		labels[k] = v
	}

	return domain.ContainerEvent{
		Kind:          kind,
		ContainerID:   msg.Actor.ID,
		ContainerName: name,
		Labels:        labels,
		Image:         msg.Actor.Attributes["image"],
	}, true
}
