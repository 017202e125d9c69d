package sets

import "encoding/json"

// Message is a MESSAGE frame delivered to a subscription.
type Message struct {
	Topic        string
	Subscription string
	MessageID    string
	Body         json.RawMessage
}

// Decode unmarshals the JSON body into v.
func (m Message) Decode(v any) error {
	return UnmarshalData(m.Body, v)
}

// Handler receives the messages of one subscription.
type Handler func(Message)

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return WrapError(ErrorSerialization, "failed to unmarshal payload", err)
	}
	return nil
}
