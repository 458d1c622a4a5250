package ingress

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type echoHandler struct {
	connected    chan Connection
	disconnected chan Connection
	mutex        sync.Mutex
	count        int
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		connected:    make(chan Connection, 4),
		disconnected: make(chan Connection, 4),
	}
}

func (h *echoHandler) Connect(connection Connection) {
	h.mutex.Lock()
	h.count++
	h.mutex.Unlock()

	h.connected <- connection

	go func() {
		ctx := connection.Lifetime().Ctx()
		for {
			select {
			case message := <-connection.ReceiveMessages():
				connection.Send(Message{
					Event: "echo",
					Data:  message.Data,
				})
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (h *echoHandler) Disconnect(connection Connection) {
	h.disconnected <- connection
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return c
}

func read(t *testing.T, c *websocket.Conn) (websocket.MessageType, []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	return typ, data
}

func TestCodec(t *testing.T) {
	message := Message{
		Event: "gm_update",
		Data: map[string]any{
			"session_id":  "abc",
			"update_data": map[string]any{"view_state": map[string]any{"scale": 2.0}},
		},
	}

	for _, encoding := range []Encoding{EncodingJSON, EncodingCBOR} {
		data, err := Encode(encoding, message)
		require.NoError(t, err)

		decoded, err := Decode(encoding, data)
		require.NoError(t, err)
		assert.Equal(t, "gm_update", decoded.Event)

		fields, ok := decoded.Data.(map[string]any)
		require.True(t, ok)
		update, ok := fields["update_data"].(map[string]any)
		require.True(t, ok)
		view, ok := update["view_state"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 2.0, view["scale"])
	}

	_, err := Decode(EncodingJSON, []byte(`{"data": {}}`))
	assert.Error(t, err)

	_, err = Decode(EncodingJSON, []byte(`nope`))
	assert.Error(t, err)

	_, err = Decode(EncodingCBOR, []byte{0xff})
	assert.Error(t, err)

	assert.Equal(t, websocket.MessageBinary, EncodingCBOR.MessageType())
	assert.Equal(t, EncodingJSON, EncodingFor(websocket.MessageText))
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, "unknown", DeviceType(""))
	assert.Equal(t, "desktop", DeviceType("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"))
	assert.Equal(t, "mobile", DeviceType("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"))
}

func TestWSRoundTrip(t *testing.T) {
	handler := newEchoHandler()
	ingress := NewWSIngress(handler, time.Second, 0)

	server := httptest.NewServer(ingress)
	defer server.Close()

	c := dial(t, server)
	defer c.Close(websocket.StatusNormalClosure, "")

	var connection Connection
	select {
	case connection = <-handler.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}
	assert.NotEmpty(t, connection.Id())
	assert.Equal(t, NetworkStatus(NetworkStatusConnected), connection.NetworkStatus())

	ctx := context.Background()

	// Malformed frames are dropped without closing the connection
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`garbage`)))

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"event":"join_session","data":{"session_id":"abc"}}`)))
	typ, data := read(t, c)
	assert.Equal(t, websocket.MessageText, typ)

	var reply map[string]any
	require.NoError(t, json.Unmarshal(data, &reply))
	assert.Equal(t, "echo", reply["event"])
	assert.Equal(t, map[string]any{"session_id": "abc"}, reply["data"])

	// Replies follow the encoding the client last used
	frame, err := cbor.Marshal(Message{Event: "join_session", Data: map[string]any{"session_id": "xyz"}})
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, frame))

	typ, data = read(t, c)
	assert.Equal(t, websocket.MessageBinary, typ)
	decoded, err := Decode(EncodingCBOR, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"session_id": "xyz"}, decoded.Data)

	c.Close(websocket.StatusNormalClosure, "")

	select {
	case gone := <-handler.disconnected:
		assert.Equal(t, connection.Id(), gone.Id())
		assert.Equal(t, NetworkStatus(NetworkStatusDisconnected), gone.NetworkStatus())
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect was never reported")
	}

	assert.Eventually(t, func() bool {
		return ingress.NumClients() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerDisconnect(t *testing.T) {
	handler := newEchoHandler()
	ingress := NewWSIngress(handler, time.Second, 0)

	server := httptest.NewServer(ingress)
	defer server.Close()

	c := dial(t, server)
	defer c.Close(websocket.StatusNormalClosure, "")

	connection := <-handler.connected
	connection.Disconnect("kicked")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Error(t, err)

	<-handler.disconnected
	assert.ErrorIs(t, connection.Send(Message{Event: "late"}), context.Canceled)
}
