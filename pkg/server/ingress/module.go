package ingress

import (
	"fmt"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/utils"
)

// A unique identifier for this client for the lifetime of their connection.
type ClientID string

type ClientType uint8

const (
	ClientTypeWS = iota
)

const (
	CLIENT_MESSAGE_LIMIT int = 16
)

// The status of the client's connection to the server.
type NetworkStatus uint8

const (
	NetworkStatusConnected = iota
	NetworkStatusDisconnected
)

// Returned by Send when the client could not keep up and was dropped.
var ErrSlowClient = fmt.Errorf("client too slow")

type Connection interface {
	Id() ClientID
	Lifetime() *utils.Lifetime

	// Lasts for the duration of the client's connection to its ingress.
	NetworkStatus() NetworkStatus
	Host() string
	Type() ClientType
	DeviceType() string
	// Messages going to the client. Never blocks.
	Send(message Message) error
	// Messages going to the server
	ReceiveMessages() <-chan Message
	// When the client disconnects on its own
	ReceiveDisconnect() <-chan bool
	// Forcibly disconnect this client
	Disconnect(reason string)
}

// Handler is told about every connection the ingress accepts.
type Handler interface {
	Connect(connection Connection)
	Disconnect(connection Connection)
}

var _ Connection = (*WSClient)(nil)
