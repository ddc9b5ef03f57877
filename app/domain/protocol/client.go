package protocol

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type ClientType string

const (
	ClientTypeWindow ClientType = "window"
	ClientTypeWorker ClientType = "worker"
)

const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"
)

// Conn is the transport to one connected context.
type Conn interface {
	Send(env Envelope) error
	Close() error
}

type ClientState struct {
	URL             string `json:"url"`
	VisibilityState string `json:"visibilityState"`
	Focused         bool   `json:"focused"`
}

// ClientStateUpdate is the payload of a clientState message; nil fields
// are left unchanged.
type ClientStateUpdate struct {
	URL             *string `json:"url,omitempty"`
	VisibilityState *string `json:"visibilityState,omitempty"`
	Focused         *bool   `json:"focused,omitempty"`
}

type Client struct {
	ID   string
	Type ClientType

	conn Conn
	seq  uint64

	mu         sync.RWMutex
	state      ClientState
	controller string

	done     chan struct{}
	doneOnce sync.Once
}

func NewClient(clientType ClientType, conn Conn, state ClientState) *Client {
	if clientType != ClientTypeWorker {
		clientType = ClientTypeWindow
	}
	if state.VisibilityState == "" {
		state.VisibilityState = VisibilityVisible
	}
	return &Client{
		ID:    uuid.NewString(),
		Type:  clientType,
		conn:  conn,
		state: state,
		done:  make(chan struct{}),
	}
}

func (c *Client) Send(env Envelope) error {
	return c.conn.Send(env)
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) Update(u ClientStateUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.URL != nil {
		c.state.URL = *u.URL
	}
	if u.VisibilityState != nil {
		c.state.VisibilityState = *u.VisibilityState
	}
	if u.Focused != nil {
		c.state.Focused = *u.Focused
	}
}

func (c *Client) Visible() bool {
	return c.State().VisibilityState == VisibilityVisible
}

func (c *Client) VisibleAndFocused() bool {
	s := c.State()
	return s.VisibilityState == VisibilityVisible && s.Focused
}

// Controller is the build hash of the generation controlling this client,
// empty while uncontrolled.
func (c *Client) Controller() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.controller
}

func (c *Client) SetController(buildHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = buildHash
}

// Done is closed once the client disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) markGone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Registry tracks connected clients in connection order.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextSeq atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

func (r *Registry) Register(c *Client) {
	c.seq = r.nextSeq.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Unregister removes the client and wakes every call waiting on it.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if ok {
		c.markGone()
	}
}

func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// MatchAll lists clients of the given type, or all clients when clientType
// is empty.
func (r *Registry) MatchAll(clientType ClientType) []*Client {
	r.mu.RLock()
	result := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if clientType == "" || c.Type == clientType {
			result = append(result, c)
		}
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
