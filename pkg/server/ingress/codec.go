package ingress

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"nhooyr.io/websocket"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Event string `json:"event" cbor:"event"`
	Data  any    `json:"data" cbor:"data"`
}

type Encoding uint8

const (
	// Text frames
	EncodingJSON Encoding = iota
	// Binary frames
	EncodingCBOR
)

func (e Encoding) MessageType() websocket.MessageType {
	if e == EncodingCBOR {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

func EncodingFor(typ websocket.MessageType) Encoding {
	if typ == websocket.MessageBinary {
		return EncodingCBOR
	}
	return EncodingJSON
}

var decodeMode cbor.DecMode
var encodeMode cbor.EncMode

func init() {
	var err error

	// Objects decode the same way JSON objects do
	decodeMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}

	encodeMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}
}

func Decode(encoding Encoding, data []byte) (Message, error) {
	var message Message

	var err error
	switch encoding {
	case EncodingCBOR:
		err = decodeMode.Unmarshal(data, &message)
	default:
		err = json.Unmarshal(data, &message)
	}
	if err != nil {
		return Message{}, fmt.Errorf("malformed frame: %w", err)
	}

	if message.Event == "" {
		return Message{}, fmt.Errorf("frame has no event")
	}

	return message, nil
}

func Encode(encoding Encoding, message Message) ([]byte, error) {
	if encoding == EncodingCBOR {
		return encodeMode.Marshal(message)
	}
	return json.Marshal(message)
}
