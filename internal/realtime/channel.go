package realtime

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"

	"github.com/npezzotti/chatsync/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

var (
	ErrNotConnected   = errors.New("channel not connected")
	ErrSendQueueFull  = errors.New("send queue full")
	ErrChannelStarted = errors.New("channel already started")
)

// Conn is the part of *websocket.Conn the channel relies on.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Dialer struct {
	url      string
	protocol types.Protocol
	log      zerolog.Logger
	ws       *websocket.Dialer
}

func NewDialer(url string, protocol types.Protocol, logger zerolog.Logger) *Dialer {
	return &Dialer{
		url:      url,
		protocol: protocol,
		log:      logger,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Dial opens the socket, authenticating with a bearer token. The returned channel
// delivers nothing until Start is called, so subscribers can attach first.
func (d *Dialer) Dial(ctx context.Context, token string) (*Channel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.ws.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: status %d", d.url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", d.url)
	}

	return NewChannel(conn, d.protocol, d.log), nil
}

// Channel is one live connection. Events are published from the read pump in
// the order they arrive on the socket.
type Channel struct {
	id        string
	conn      Conn
	protocol  types.Protocol
	log       zerolog.Logger
	send      chan []byte
	stop      chan struct{}
	readDone  chan struct{}
	writeDone chan struct{}
	subs      *subscriptions
	connected atomic.Bool
	started   atomic.Bool
	closeOnce sync.Once
}

func NewChannel(conn Conn, protocol types.Protocol, logger zerolog.Logger) *Channel {
	id, err := shortid.Generate()
	if err != nil {
		id = "unknown"
	}
	return &Channel{
		id:        id,
		conn:      conn,
		protocol:  protocol,
		log:       logger.With().Str("component", "realtime").Str("channel_id", id).Logger(),
		send:      make(chan []byte, sendQueueSize),
		stop:      make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		subs:      newSubscriptions(),
	}
}

func (c *Channel) Id() string {
	return c.id
}

func (c *Channel) Subscribe(h Handler) Subscription {
	return c.subs.add(h)
}

func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Start launches the pumps. The connected transition is published from the read
// pump before the first inbound frame.
func (c *Channel) Start() error {
	if c.started.Swap(true) {
		return ErrChannelStarted
	}
	go c.write()
	go c.read()
	return nil
}

// Emit queues an outbound send. It never blocks.
func (c *Channel) Emit(out Outbound) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	raw, err := EncodeOutbound(c.protocol, out)
	if err != nil {
		return err
	}

	select {
	case c.send <- raw:
		return nil
	default:
		c.log.Warn().Int64("temp_id", out.TempId).Msg("send queue full, dropping message")
		return ErrSendQueueFull
	}
}

// Close releases all subscriptions, closes the socket and waits for the pumps to
// exit. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.subs.closeAll()
		c.connected.Store(false)
		close(c.stop)
		err = c.conn.Close()
		if c.started.Load() {
			<-c.readDone
			<-c.writeDone
		}
		c.log.Debug().Msg("channel closed")
	})
	return err
}

func (c *Channel) read() {
	defer func() {
		c.connected.Store(false)
		c.conn.Close()
		close(c.readDone)
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	c.connected.Store(true)
	c.log.Info().Msg("connected")
	c.subs.publish(Event{Kind: EventConnected, Received: Now()})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("connection lost")
			}
			c.connected.Store(false)
			c.subs.publish(Event{Kind: EventDisconnected, Err: err, Received: Now()})
			return
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid frame")
			continue
		}
		c.subs.publish(ev)
	}
}

func (c *Channel) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writeDone)
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case raw := <-c.send:
			if !c.writeMessage(websocket.TextMessage, raw) {
				return
			}
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		case <-c.readDone:
			return
		case <-c.stop:
			return
		}
	}
}

func (c *Channel) writeMessage(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}
	return true
}
