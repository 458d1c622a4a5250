package gateway

import (
	"context"
	"errors"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/ingress"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/metrics"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/session"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/utils"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// PathResolver finds the state a session adopts when the GM switches it to
// another piece of content.
type PathResolver interface {
	ResolvePath(ctx context.Context, reference string) opt.Option[state.State]
}

// Outbound is a message addressed either to one client or to every member
// of a session room.
type Outbound struct {
	Client  ingress.ClientID
	Session string
	// Revision of the session state carried by Message, zero if none.
	Revision uint64
	Message  ingress.Message
}

func (o Outbound) IsBroadcast() bool {
	return o.Client == ""
}

func Unicast(id ingress.ClientID, message ingress.Message) Outbound {
	return Outbound{
		Client:  id,
		Message: message,
	}
}

func Broadcast(session string, revision uint64, message ingress.Message) Outbound {
	return Outbound{
		Session:  session,
		Revision: revision,
		Message:  message,
	}
}

// Most updates held back for one connection while it is over its rate
// limit. Past this the oldest are dropped.
const PENDING_UPDATE_LIMIT = 256

type Gateway struct {
	registry *session.Registry
	repo     *state.Repository
	resolver PathResolver
	rooms    *Rooms
	limiter  *utils.KeyLimiter
	metrics  *metrics.Metrics

	clients map[ingress.ClientID]ingress.Connection
	mutex   deadlock.RWMutex

	// Rate limited updates waiting for a token, per connection
	pending      map[ingress.ClientID][]UpdateRequest
	pendingMutex deadlock.Mutex
}

// NewGateway wires the gateway to its collaborators. limiter and metrics may
// be nil.
func NewGateway(
	registry *session.Registry,
	repo *state.Repository,
	resolver PathResolver,
	limiter *utils.KeyLimiter,
	metrics *metrics.Metrics,
) *Gateway {
	return &Gateway{
		registry: registry,
		repo:     repo,
		resolver: resolver,
		rooms:    NewRooms(),
		limiter:  limiter,
		metrics:  metrics,
		clients:  make(map[ingress.ClientID]ingress.Connection),
		pending:  make(map[ingress.ClientID][]UpdateRequest),
	}
}

func (g *Gateway) Logger() zerolog.Logger {
	return log.With().Str("service", "gateway").Logger()
}

func (g *Gateway) Rooms() *Rooms {
	return g.rooms
}

func (g *Gateway) client(id ingress.ClientID) ingress.Connection {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.clients[id]
}

func (g *Gateway) NumClients() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.clients)
}

// Connect registers a connection without any room and starts processing its
// events.
func (g *Gateway) Connect(connection ingress.Connection) {
	g.mutex.Lock()
	g.clients[connection.Id()] = connection
	g.mutex.Unlock()

	g.metrics.Connected()
	logger := g.Logger()
	logger.Debug().
		Str("clientId", string(connection.Id())).
		Str("host", connection.Host()).
		Msg("client connected")

	go g.poll(connection)
}

// Disconnect removes the connection from every room. Session state is kept.
func (g *Gateway) Disconnect(connection ingress.Connection) {
	id := connection.Id()

	g.mutex.Lock()
	_, ok := g.clients[id]
	delete(g.clients, id)
	g.mutex.Unlock()

	if !ok {
		return
	}

	left := g.rooms.LeaveAll(id)
	g.limiter.Forget(string(id))
	g.metrics.Disconnected()

	logger := g.Logger()
	logger.Debug().
		Str("clientId", string(id)).
		Strs("sessions", left).
		Msg("client disconnected")
}

func (g *Gateway) poll(connection ingress.Connection) {
	ctx := connection.Lifetime().Ctx()

	for {
		select {
		case message := <-connection.ReceiveMessages():
			g.Dispatch(g.Handle(ctx, connection.Id(), message))
		case <-connection.ReceiveDisconnect():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) send(id ingress.ClientID, message ingress.Message) {
	connection := g.client(id)
	if connection == nil {
		return
	}

	err := connection.Send(message)
	g.metrics.Delivered(err == nil)
	if err == nil {
		return
	}

	logger := g.Logger().With().Str("clientId", string(id)).Logger()
	if errors.Is(err, ingress.ErrSlowClient) {
		logger.Warn().Msg("client too slow; dropping")
		return
	}
	logger.Debug().Err(err).Msg("could not send to client")
}

// Dispatch delivers the results of Handle. Broadcasts reach the room
// members present at the time of delivery.
func (g *Gateway) Dispatch(outbound []Outbound) {
	for _, message := range outbound {
		message := message

		if message.IsBroadcast() {
			g.rooms.Broadcast(message.Session, message.Revision, func(id ingress.ClientID) {
				g.send(id, message.Message)
			})
			continue
		}

		if message.Session == "" {
			g.send(message.Client, message.Message)
			continue
		}

		delivered := g.rooms.Unicast(message.Session, message.Revision, func() {
			g.send(message.Client, message.Message)
		})
		if !delivered {
			logger := g.Logger()
			logger.Debug().
				Str("clientId", string(message.Client)).
				Str("session", message.Session).
				Msg("skipping stale state")
		}
	}
}
