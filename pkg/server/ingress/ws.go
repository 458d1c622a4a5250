package ingress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/utils"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

const (
	DEFAULT_WRITE_TIMEOUT = 5 * time.Second
	// Largest frame a client may send us.
	READ_LIMIT = 1 << 20
)

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type WSClient struct {
	id         ClientID
	host       string
	deviceType string
	lifetime   utils.Lifetime
	status     NetworkStatus
	encoding   Encoding
	toServer   chan Message
	disconnect chan bool
	send       chan frame
	closeSlow  func()
	mutex      deadlock.Mutex
}

func NewWSClient(ctx context.Context, buffer int) *WSClient {
	if buffer <= 0 {
		buffer = CLIENT_MESSAGE_LIMIT
	}

	return &WSClient{
		id:         ClientID(uuid.New().String()),
		lifetime:   utils.NewLifetime(ctx),
		toServer:   make(chan Message, CLIENT_MESSAGE_LIMIT),
		send:       make(chan frame, buffer),
		disconnect: make(chan bool, 1),
		closeSlow:  func() {},
	}
}

func (c *WSClient) Id() ClientID {
	return c.id
}

func (c *WSClient) Lifetime() *utils.Lifetime {
	return &c.lifetime
}

func (c *WSClient) NetworkStatus() NetworkStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.status
}

func (c *WSClient) setStatus(status NetworkStatus) {
	c.mutex.Lock()
	c.status = status
	c.mutex.Unlock()
}

func (c *WSClient) Host() string {
	return c.host
}

func (c *WSClient) Type() ClientType {
	return ClientTypeWS
}

func (c *WSClient) DeviceType() string {
	return c.deviceType
}

func (c *WSClient) Reference() string {
	return fmt.Sprintf("ws:%s", c.id)
}

func (c *WSClient) Logger() zerolog.Logger {
	return log.With().
		Str("clientId", string(c.id)).
		Str("host", c.host).
		Str("device", c.deviceType).
		Logger()
}

// Replies use the encoding of the last frame the client sent.
func (c *WSClient) setEncoding(encoding Encoding) {
	c.mutex.Lock()
	c.encoding = encoding
	c.mutex.Unlock()
}

func (c *WSClient) Encoding() Encoding {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.encoding
}

func (c *WSClient) Send(message Message) error {
	if c.lifetime.IsDone() {
		return context.Canceled
	}

	encoding := c.Encoding()
	data, err := Encode(encoding, message)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame{typ: encoding.MessageType(), data: data}:
		return nil
	default:
		go c.closeSlow()
		return ErrSlowClient
	}
}

func (c *WSClient) ReceiveMessages() <-chan Message {
	return c.toServer
}

func (c *WSClient) ReceiveDisconnect() <-chan bool {
	return c.disconnect
}

func (c *WSClient) Disconnect(reason string) {
	logger := c.Logger()
	logger.Info().Str("reason", reason).Msg("disconnecting client")
	c.lifetime.Cancel()
}

func DeviceType(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}

	agent := useragent.Parse(userAgent)
	switch {
	case agent.Bot:
		return "bot"
	case agent.Tablet:
		return "tablet"
	case agent.Mobile:
		return "mobile"
	case agent.Desktop:
		return "desktop"
	}
	return "unknown"
}

type WSIngress struct {
	handler      Handler
	clients      map[*WSClient]struct{}
	mutex        deadlock.Mutex
	writeTimeout time.Duration
	buffer       int
}

func NewWSIngress(handler Handler, writeTimeout time.Duration, buffer int) *WSIngress {
	if writeTimeout <= 0 {
		writeTimeout = DEFAULT_WRITE_TIMEOUT
	}

	return &WSIngress{
		handler:      handler,
		clients:      make(map[*WSClient]struct{}),
		writeTimeout: writeTimeout,
		buffer:       buffer,
	}
}

func WriteTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, typ websocket.MessageType, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, typ, msg)
}

func (server *WSIngress) AddClient(s *WSClient) {
	server.mutex.Lock()
	server.clients[s] = struct{}{}
	server.mutex.Unlock()
}

func (server *WSIngress) RemoveClient(client *WSClient) {
	server.mutex.Lock()
	delete(server.clients, client)
	server.mutex.Unlock()
}

func (server *WSIngress) NumClients() int {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return len(server.clients)
}

func (server *WSIngress) HandleClient(ctx context.Context, c *websocket.Conn, host string, deviceType string) error {
	client := NewWSClient(ctx, server.buffer)
	client.host = host
	client.deviceType = deviceType
	client.closeSlow = func() {
		c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	}

	ctx = client.lifetime.Ctx()
	defer client.lifetime.Cancel()

	logger := client.Logger()

	server.AddClient(client)
	defer server.RemoveClient(client)

	server.handler.Connect(client)
	defer func() {
		client.setStatus(NetworkStatusDisconnected)
		client.disconnect <- true
		server.handler.Disconnect(client)
	}()

	logger.Info().Msg("client joined")

	receive := make(chan frame)
	readErrors := make(chan error, 1)

	go func() {
		for {
			typ, message, err := c.Read(ctx)
			if err != nil {
				readErrors <- err
				return
			}

			select {
			case receive <- frame{typ: typ, data: message}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-receive:
			encoding := EncodingFor(msg.typ)
			message, err := Decode(encoding, msg.data)
			if err != nil {
				logger.Warn().Err(err).Msg("dropping malformed frame")
				continue
			}

			client.setEncoding(encoding)

			select {
			case client.toServer <- message:
			case <-ctx.Done():
				return ctx.Err()
			}
		case msg := <-client.send:
			err := WriteTimeout(ctx, server.writeTimeout, c, msg.typ, msg.data)
			if err != nil {
				logger.Error().Msg("client missed write timeout; disconnecting")
				return err
			}
		case err := <-readErrors:
			logger.Info().Dur("age", client.lifetime.Age()).Msg("client left")
			return err
		case <-ctx.Done():
			logger.Info().Dur("age", client.lifetime.Age()).Msg("client left")
			return ctx.Err()
		}
	}
}

func (server *WSIngress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})

	if err != nil {
		log.Error().Err(err).Msg("error accepting client connection")
		return
	}

	c.SetReadLimit(READ_LIMIT)

	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	// Reverse proxies set this, so check it first
	hostname := r.RemoteAddr

	original, ok := r.Header["X-Forwarded-For"]
	if ok {
		hostname = original[0]
	}

	err = server.HandleClient(r.Context(), c, hostname, DeviceType(r.UserAgent()))
	if errors.Is(err, context.Canceled) {
		c.Close(websocket.StatusNormalClosure, "")
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to close client port")
		return
	}
}

// Shutdown disconnects every client.
func (server *WSIngress) Shutdown() {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	for client := range server.clients {
		client.Disconnect("server shutting down")
	}
}
