package notification

import (
	"sort"
	"sync"
	"time"

	"hydrogen.im/hydrogen-worker/app/domain/common"
	"hydrogen.im/hydrogen-worker/app/utils/idgen"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

const (
	TagNewMessage   = "new_message"
	TagMessagesRead = "messages_read"

	idPrefix         = "notif"
	subscriberBuffer = 32
)

var ErrNotificationNotFound = common.NewError("5a4b3d1e-7c2f-4e8a-9b61-0f3d2c7e9a14", "notification not found")

type Data struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Tag       string    `json:"tag"`
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"created_at"`

	seq uint64
}

type EventType string

const (
	EventShown      EventType = "shown"
	EventClosed     EventType = "closed"
	EventOpenWindow EventType = "open_window"
)

type Event struct {
	Type         EventType     `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	URL          string        `json:"url,omitempty"`
}

// Center holds the notifications currently shown and fans their changes out
// to subscribers, which render them.
type Center struct {
	mu      sync.Mutex
	items   map[string]*Notification
	seq     uint64
	subs    map[int]chan Event
	nextSub int
}

func NewCenter() *Center {
	return &Center{
		items: make(map[string]*Notification),
		subs:  make(map[int]chan Event),
	}
}

func (c *Center) Show(title string, body string, tag string, data Data) (*Notification, error) {
	n, err := newNotification(title, body, tag, data)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showLocked(n), nil
}

// Replace closes every shown notification with tag for which stale reports
// true and shows the new one, in one step.
func (c *Center) Replace(title string, body string, tag string, data Data, stale func(*Notification) bool) (*Notification, error) {
	n, err := newNotification(title, body, tag, data)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, old := range c.items {
		if old.Tag == tag && stale(old) {
			c.closeLocked(id)
		}
	}
	return c.showLocked(n), nil
}

// ShowUnlessTagged shows the notification only if none with its tag is
// shown. It reports whether it was shown.
func (c *Center) ShowUnlessTagged(title string, body string, tag string, data Data) (*Notification, bool, error) {
	n, err := newNotification(title, body, tag, data)
	if err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, old := range c.items {
		if old.Tag == tag {
			return nil, false, nil
		}
	}
	return c.showLocked(n), true, nil
}

// CloseWhere closes every shown notification matching match and returns
// how many it closed.
func (c *Center) CloseWhere(match func(*Notification) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	closed := 0
	for id, n := range c.items {
		if match(n) {
			c.closeLocked(id)
			closed++
		}
	}
	return closed
}

func newNotification(title string, body string, tag string, data Data) (*Notification, error) {
	id, err := idgen.GenerateSecureID(idPrefix, 16)
	if err != nil {
		return nil, err
	}
	return &Notification{
		ID:        id,
		Title:     title,
		Body:      body,
		Tag:       tag,
		Data:      data,
		CreatedAt: time.Now(),
	}, nil
}

func (c *Center) showLocked(n *Notification) *Notification {
	c.seq++
	n.seq = c.seq
	c.items[n.ID] = n
	c.publishLocked(Event{Type: EventShown, Notification: copyOf(n)})
	return copyOf(n)
}

func (c *Center) closeLocked(id string) {
	n := c.items[id]
	delete(c.items, id)
	c.publishLocked(Event{Type: EventClosed, Notification: copyOf(n)})
}

// List returns the shown notifications with the given tag, oldest first.
// An empty tag lists all of them.
func (c *Center) List(tag string) []*Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]*Notification, 0, len(c.items))
	for _, n := range c.items {
		if tag == "" || n.Tag == tag {
			result = append(result, copyOf(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

// IsNotificationID reports whether id has the shape of an id issued by Show.
func IsNotificationID(id string) bool {
	return idgen.ValidateIDFormat(id, idPrefix)
}

func (c *Center) Get(id string) (*Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return copyOf(n), true
}

// Close removes the notification. It reports false if it was not shown.
func (c *Center) Close(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	c.closeLocked(id)
	return true
}

// Publish sends an event that does not change the shown set.
func (c *Center) Publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(ev)
}

// Subscribe returns a stream of events and a function ending the
// subscription. Slow subscribers miss events rather than block the center.
func (c *Center) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Center) publishLocked(ev Event) {
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			logger.GetLogger().Warnf("notification subscriber %d is full, dropping %s event", id, ev.Type)
		}
	}
}

func copyOf(n *Notification) *Notification {
	c := *n
	return &c
}
