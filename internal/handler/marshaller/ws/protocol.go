package wsmarshaller

import "encoding/json"

// Frame types sent by the client.
const (
	TypeSubscribe = "subscribe"
	TypePing      = "ping"
	TypeComplete  = "complete"
)

// Frame types sent by the server. TypeComplete is shared.
const (
	TypeData  = "data"
	TypeError = "error"
	TypePong  = "pong"
)

// Frame is the envelope of every message on the streaming socket.
// ID correlates frames with the subscription they belong to.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// DataPayload carries one event keyed by the subscription's result field.
type DataPayload struct {
	Data map[string]json.RawMessage `json:"data"`
}

// NewSubscribe builds the client frame that opens subscription id.
func NewSubscribe(id, query string) ([]byte, error) {
	payload, err := json.Marshal(SubscribePayload{Query: query})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{ID: id, Type: TypeSubscribe, Payload: payload})
}

// NewControl builds a frame without payload: ping, pong or complete.
func NewControl(id, typ string) []byte {
	b, _ := json.Marshal(Frame{ID: id, Type: typ})
	return b
}

func NewError(id, message string) []byte {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	b, _ := json.Marshal(Frame{ID: id, Type: TypeError, Payload: payload})
	return b
}
