package wsmarshaller

import (
	"encoding/json"
	"fmt"

	"github.com/webitel/post-feed-service/internal/domain/event"
)

// encodedPayload is the per-event cache shared by every subscriber.
type encodedPayload struct {
	full   json.RawMessage
	fields map[string]json.RawMessage
}

// MarshallDeliveryEvent builds the data frame for subscription id.
// The payload is encoded once per event, however many sockets receive it.
func MarshallDeliveryEvent(id string, sel Selection, ev event.Eventer) ([]byte, error) {
	enc, err := encode(ev)
	if err != nil {
		return nil, err
	}

	result := enc.full
	if len(sel.Fields) > 0 {
		projected := make(map[string]json.RawMessage, len(sel.Fields))
		for _, f := range sel.Fields {
			if v, ok := enc.fields[f]; ok {
				projected[f] = v
			} else {
				projected[f] = json.RawMessage("null")
			}
		}
		if result, err = json.Marshal(projected); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(DataPayload{Data: map[string]json.RawMessage{sel.ResponseKey(): result}})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{ID: id, Type: TypeData, Payload: payload})
}

func encode(ev event.Eventer) (*encodedPayload, error) {
	// [CACHE_HIT]
	if cached, ok := ev.GetCached().(*encodedPayload); ok {
		return cached, nil
	}

	full, err := json.Marshal(ev.GetPayload())
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.GetKind(), err)
	}
	enc := &encodedPayload{full: full}
	if err := json.Unmarshal(full, &enc.fields); err != nil {
		return nil, fmt.Errorf("index %s payload: %w", ev.GetKind(), err)
	}

	// [STORE] Concurrent first writers compute identical values; either one may win.
	ev.SetCached(enc)
	return enc, nil
}

// DecodeData extracts the result for topic from a data frame payload.
func DecodeData(payload json.RawMessage, topic string, v any) error {
	var dp DataPayload
	if err := json.Unmarshal(payload, &dp); err != nil {
		return err
	}
	raw, ok := dp.Data[topic]
	if !ok {
		return fmt.Errorf("data frame has no %q result", topic)
	}
	return json.Unmarshal(raw, v)
}
