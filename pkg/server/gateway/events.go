package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/ingress"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/server/metrics"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
)

const (
	EVENT_JOIN_SESSION = "join_session"
	EVENT_GM_UPDATE    = "gm_update"
	EVENT_STATE_UPDATE = "state_update"
	EVENT_ERROR        = "error"
)

const (
	KEY_SESSION_ID  = "session_id"
	KEY_UPDATE_DATA = "update_data"
)

var SESSION_ID_REGEX = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

func ValidSessionID(id string) bool {
	return SESSION_ID_REGEX.MatchString(id)
}

type ErrorPayload struct {
	Message string `json:"message" cbor:"message"`
}

type JoinRequest struct {
	SessionID string
}

type UpdateRequest struct {
	SessionID string
	Patch     state.Patch
}

func sessionID(fields map[string]any) (string, error) {
	id, ok := fields[KEY_SESSION_ID].(string)
	if !ok || !ValidSessionID(id) {
		return "", invalid("Invalid session ID format or length.")
	}
	return id, nil
}

func ParseJoin(data any) (JoinRequest, error) {
	fields, ok := data.(map[string]any)
	if !ok {
		return JoinRequest{}, invalid("Invalid join request.")
	}
	if _, ok := fields[KEY_SESSION_ID]; !ok {
		return JoinRequest{}, invalid("Invalid join request.")
	}

	id, err := sessionID(fields)
	if err != nil {
		return JoinRequest{}, err
	}
	return JoinRequest{SessionID: id}, nil
}

func ParseUpdate(data any) (UpdateRequest, error) {
	fields, ok := data.(map[string]any)
	if !ok {
		return UpdateRequest{}, invalid("update must be an object")
	}

	raw, ok := fields[KEY_UPDATE_DATA]
	if !ok {
		return UpdateRequest{}, invalid("update has no %s", KEY_UPDATE_DATA)
	}

	id, err := sessionID(fields)
	if err != nil {
		return UpdateRequest{}, err
	}

	patch, err := state.ParsePatch(raw)
	if err != nil {
		return UpdateRequest{}, invalid("%s", err.Error())
	}

	return UpdateRequest{
		SessionID: id,
		Patch:     patch,
	}, nil
}

// Best effort, for logging only.
func sessionHint(data any) string {
	fields, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := fields[KEY_SESSION_ID].(string)
	if len(id) > 64 {
		return id[:64]
	}
	return id
}

// Handle processes one inbound event from a client and returns the
// messages it produces. Faults are contained to the event.
func (g *Gateway) Handle(ctx context.Context, id ingress.ClientID, message ingress.Message) (out []Outbound) {
	logger := g.Logger().With().
		Str("clientId", string(id)).
		Str("event", message.Event).
		Str("session", sessionHint(message.Data)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrInternal, r)
			logger.Error().Err(err).Str("stack", string(debug.Stack())).Msg("event handler panicked")
			g.metrics.Fault()
			out = nil
		}
	}()

	switch message.Event {
	case EVENT_JOIN_SESSION:
		return g.handleJoin(logger, id, message.Data)
	case EVENT_GM_UPDATE:
		outbound, err := g.handleUpdate(ctx, id, message.Data)
		if err != nil {
			g.logUpdateError(logger, err)
			return nil
		}
		return outbound
	}

	logger.Warn().Msg("unknown event")
	return nil
}

func (g *Gateway) handleJoin(logger zerolog.Logger, id ingress.ClientID, data any) []Outbound {
	request, err := ParseJoin(data)
	if err != nil {
		var validation *ValidationError
		message := "Invalid join request."
		if errors.As(err, &validation) {
			message = validation.Message
		}

		logger.Warn().Err(err).Msg("rejected join")
		g.metrics.Join(false)
		return []Outbound{
			Unicast(id, ingress.Message{
				Event: EVENT_ERROR,
				Data:  ErrorPayload{Message: message},
			}),
		}
	}

	g.rooms.Join(request.SessionID, id)
	current, revision := g.registry.Snapshot(request.SessionID)
	g.metrics.Join(true)

	logger.Info().Msg("client joined session")

	return []Outbound{
		{
			Client:   id,
			Session:  request.SessionID,
			Revision: revision,
			Message: ingress.Message{
				Event: EVENT_STATE_UPDATE,
				Data:  current,
			},
		},
	}
}

func (g *Gateway) logUpdateError(logger zerolog.Logger, err error) {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		g.metrics.Update(metrics.UPDATE_INVALID)
		logger.Warn().Err(err).Msg("dropping malformed gm update")
	case errors.Is(err, ErrRateLimited):
		g.metrics.Update(metrics.UPDATE_LIMITED)
		logger.Debug().Msg("deferring gm update over rate limit")
	case errors.Is(err, ErrResolution):
		g.metrics.Update(metrics.UPDATE_REJECTED)
		logger.Warn().Err(err).Msg("map switch failed; state unchanged")
	default:
		g.metrics.Update(metrics.UPDATE_FAILED)
		logger.Error().Err(err).Msg("failed to apply gm update")
	}
}

// transition picks the state the patch is merged onto.
func (g *Gateway) transition(ctx context.Context, current state.State, patch state.Patch) (state.State, error) {
	if opt.IsNone(patch.MapContentPath) {
		return current, nil
	}

	path := patch.MapContentPath.Value
	if path == nil {
		return g.repo.DefaultState(), nil
	}

	if *path == "" || current.HasContent(*path) {
		return current, nil
	}

	resolved := g.resolver.ResolvePath(ctx, *path)
	if opt.IsNone(resolved) {
		return current, fmt.Errorf("%w: %s", ErrResolution, *path)
	}

	return resolved.Value, nil
}

func (g *Gateway) handleUpdate(ctx context.Context, id ingress.ClientID, data any) ([]Outbound, error) {
	request, err := ParseUpdate(data)
	if err != nil {
		return nil, err
	}

	if g.deferUpdate(id, request) {
		return nil, ErrRateLimited
	}

	outbound, errs := g.apply(ctx, request.SessionID, []state.Patch{request.Patch})
	if len(outbound) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return outbound, nil
}

// deferUpdate queues the request when the connection is over its rate limit or
// already has updates waiting, so updates from one connection keep their
// order. The queue is flushed in one go once a token is free.
func (g *Gateway) deferUpdate(id ingress.ClientID, request UpdateRequest) bool {
	if g.limiter == nil {
		return false
	}

	g.pendingMutex.Lock()
	defer g.pendingMutex.Unlock()

	waiting, ok := g.pending[id]
	if ok {
		if len(waiting) >= PENDING_UPDATE_LIMIT {
			logger := g.Logger()
			logger.Warn().
				Str("clientId", string(id)).
				Str("session", waiting[0].SessionID).
				Msg("too many deferred gm updates; dropping oldest")
			g.metrics.Update(metrics.UPDATE_LIMITED)
			waiting = waiting[1:]
		}
		g.pending[id] = append(waiting, request)
		return true
	}

	now := time.Now()
	if g.limiter.Allow(string(id), now) {
		return false
	}

	g.pending[id] = []UpdateRequest{request}
	delay := g.limiter.Reserve(string(id), now)
	time.AfterFunc(delay, func() {
		g.flush(id)
	})
	return true
}

// flush applies everything deferred for a connection. Updates to the same
// session are committed together and broadcast once.
func (g *Gateway) flush(id ingress.ClientID) {
	g.pendingMutex.Lock()
	waiting := g.pending[id]
	// The key stays so updates arriving meanwhile queue behind these
	g.pending[id] = []UpdateRequest{}
	g.pendingMutex.Unlock()

	g.applyDeferred(id, waiting)

	g.pendingMutex.Lock()
	defer g.pendingMutex.Unlock()

	if len(g.pending[id]) == 0 {
		delete(g.pending, id)
		return
	}

	delay := g.limiter.Reserve(string(id), time.Now())
	time.AfterFunc(delay, func() {
		g.flush(id)
	})
}

func (g *Gateway) applyDeferred(id ingress.ClientID, waiting []UpdateRequest) {
	logger := g.Logger().With().Str("clientId", string(id)).Logger()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrInternal, r)
			logger.Error().Err(err).Str("stack", string(debug.Stack())).Msg("deferred update panicked")
			g.metrics.Fault()
		}
	}()

	var sessions []string
	patches := make(map[string][]state.Patch)
	for _, request := range waiting {
		if _, ok := patches[request.SessionID]; !ok {
			sessions = append(sessions, request.SessionID)
		}
		patches[request.SessionID] = append(patches[request.SessionID], request.Patch)
	}

	ctx := context.Background()
	for _, session := range sessions {
		outbound, errs := g.apply(ctx, session, patches[session])
		for _, err := range errs {
			g.logUpdateError(logger.With().Str("session", session).Logger(), err)
		}
		g.Dispatch(outbound)
	}
}

// apply runs the transition for each patch in order inside one registry
// update. A patch that fails is skipped and the rest still apply.
func (g *Gateway) apply(ctx context.Context, session string, patches []state.Patch) ([]Outbound, []error) {
	var errs []error
	next, revision, ok := g.registry.Update(session, func(current state.State) (state.State, bool) {
		applied := 0
		for _, patch := range patches {
			base, err := g.transition(ctx, current, patch)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			merged, err := g.repo.Apply(base, patch)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s", ErrInternal, err.Error()))
				continue
			}

			current = merged
			applied++
		}
		return current, applied > 0
	})
	if !ok {
		return nil, errs
	}

	g.metrics.Update(metrics.UPDATE_APPLIED)
	logger := g.Logger()
	logger.Debug().
		Str("session", session).
		Uint64("revision", revision).
		Int("patches", len(patches)).
		Msg("state updated")

	return []Outbound{
		Broadcast(session, revision, ingress.Message{
			Event: EVENT_STATE_UPDATE,
			Data:  next,
		}),
	}, errs
}
