package notification

import "context"

// EventOpener asks whoever renders the notification stream to open the
// window, since the worker itself has no display.
type EventOpener struct {
	center *Center
}

func NewEventOpener(center *Center) *EventOpener {
	return &EventOpener{center: center}
}

func (o *EventOpener) OpenWindow(ctx context.Context, url string) error {
	o.center.Publish(Event{Type: EventOpenWindow, URL: url})
	return nil
}
