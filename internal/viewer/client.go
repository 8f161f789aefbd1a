// Package viewer is the client side of the registry: it loads the current
// records, follows live additions over the websocket, and submits new ones.
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/rch-registry/internal/model"
)

var (
	ErrAlreadyMounted = errors.New("viewer already mounted")
	ErrUnmounted      = errors.New("viewer unmounted")
)

type Config struct {
	ServerURL  string        `envconfig:"SERVER_URL" default:"http://localhost:5000"`
	SocketPath string        `envconfig:"SOCKET_PATH" default:"/socket"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"10s"`
	// Updates buffered for a slow consumer before new ones are dropped
	UpdateBuffer int `envconfig:"UPDATE_BUFFER" default:"64"`
}

// APIError is a non-2xx answer from the registry
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	cfg    Config
	http   *http.Client
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu      sync.RWMutex
	records []model.Patient
	seen    map[uuid.UUID]struct{}
	mounted bool

	conn           *websocket.Conn
	updates        chan model.Patient
	subscribed     chan struct{}
	subscribedOnce sync.Once
	exited         chan struct{}
	ready          chan struct{}
	done           chan struct{}
	closeOnce      sync.Once
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/socket"
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 64
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
		log:        log.With().Str("component", "viewer").Logger(),
		seen:       make(map[uuid.UUID]struct{}),
		updates:    make(chan model.Patient, cfg.UpdateBuffer),
		subscribed: make(chan struct{}),
		exited:     make(chan struct{}),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Mount subscribes and waits for the server to acknowledge the subscription
// before fetching, so nothing created in between is lost. Broadcasts that
// arrive while the fetch is in flight are held back and merged afterwards,
// skipping any record the fetch already returned.
func (c *Client) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.mounted = true
	c.mu.Unlock()

	select {
	case <-c.done:
		return ErrUnmounted
	default:
	}

	wsURL, err := c.socketURL()
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		conn.Close()
		return ErrUnmounted
	default:
	}
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)

	if err := c.awaitSubscribed(ctx); err != nil {
		_ = c.Unmount()
		return err
	}

	patients, err := c.List(ctx)
	if err != nil {
		_ = c.Unmount()
		return err
	}

	c.mu.Lock()
	c.records = patients
	for _, p := range patients {
		c.seen[p.ID] = struct{}{}
	}
	c.mu.Unlock()
	close(c.ready)

	c.log.Debug().Int("records", len(patients)).Msg("viewer mounted")
	return nil
}

// Records returns a snapshot, newest first
func (c *Client) Records() []model.Patient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Patient(nil), c.records...)
}

// Updates yields each record added after Mount. It is closed when the
// subscription ends.
func (c *Client) Updates() <-chan model.Patient {
	return c.updates
}

// List fetches every record, newest first
func (c *Client) List(ctx context.Context) ([]model.Patient, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServerURL+"/api/patients", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patients: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var patients []model.Patient
	if err := json.NewDecoder(resp.Body).Decode(&patients); err != nil {
		return nil, fmt.Errorf("failed to decode patients: %w", err)
	}
	if patients == nil {
		patients = []model.Patient{}
	}
	return patients, nil
}

// Submit creates a record. On success the form is reset for the next entry;
// on failure it is left as the user typed it. The new record reaches Records
// through the broadcast like any other.
func (c *Client) Submit(ctx context.Context, form *Form) (*model.Patient, error) {
	body, err := json.Marshal(form.request())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/api/patients", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit patient: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeAPIError(resp)
	}

	var created struct {
		Message string        `json:"message"`
		Data    model.Patient `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode created patient: %w", err)
	}

	form.Reset()
	return &created.Data, nil
}

// Unmount releases the subscription. Safe to call more than once.
func (c *Client) Unmount() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			close(c.updates)
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	})
	return err
}

func (c *Client) awaitSubscribed(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-c.subscribed:
		return nil
	case <-c.exited:
		return errors.New("subscription rejected by server")
	case <-timer.C:
		return errors.New("timed out waiting for subscription")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.exited)
	defer close(c.updates)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn().Err(err).Msg("subscription ended")
			}
			return
		}

		event, patient, ok := c.decode(data)
		if !ok {
			continue
		}
		// Any frame proves the server has registered us
		c.subscribedOnce.Do(func() { close(c.subscribed) })
		if event != model.EventNewPatientAdded {
			continue
		}

		select {
		case <-c.ready:
		case <-c.done:
			return
		}
		c.apply(patient)
	}
}

func (c *Client) decode(data []byte) (string, model.Patient, bool) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		c.log.Warn().Err(err).Msg("discarding malformed frame")
		return "", model.Patient{}, false
	}
	if env.Event != model.EventNewPatientAdded {
		return env.Event, model.Patient{}, true
	}

	var p model.Patient
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed patient")
		return "", model.Patient{}, false
	}
	return env.Event, p, true
}

// apply prepends p unless it is already shown
func (c *Client) apply(p model.Patient) bool {
	c.mu.Lock()
	if _, dup := c.seen[p.ID]; dup {
		c.mu.Unlock()
		return false
	}
	c.seen[p.ID] = struct{}{}
	c.records = append([]model.Patient{p}, c.records...)
	c.mu.Unlock()

	select {
	case c.updates <- p:
	default:
		c.log.Warn().Str("patient_id", p.ID.String()).Msg("update buffer full, consumer will only see it in Records")
	}
	return true
}

func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.cfg.SocketPath
	return u.String(), nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
