package events

import "time"

// JSONEvent is a JSON-serializable form of Event. The daemon's WatchJob
// stream does not use it (it sends apiv1.JobEvent), and neither do the
// federation driver's generate-ws frames.
type JSONEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Backend   string                 `json:"backend,omitempty"`
	Request   string                 `json:"request,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ToJSONEvent converts an internal Event to the wire format.
func ToJSONEvent(e Event) JSONEvent {
	je := JSONEvent{
		Type:      string(e.Type),
		Timestamp: e.Time,
		Backend:   e.Backend,
		Request:   e.Request,
		Error:     e.Error,
	}

	if e.Payload != nil {
		switch p := e.Payload.(type) {
		case map[string]interface{}:
			je.Payload = p
		default:
			je.Payload = map[string]interface{}{"value": e.Payload}
		}
	}

	return je
}

// ToEvent converts a wire format JSONEvent back to an internal Event.
func (je JSONEvent) ToEvent() Event {
	var payload any
	if je.Payload != nil {
		payload = je.Payload
	}

	return Event{
		Type:    EventType(je.Type),
		Time:    je.Timestamp,
		Backend: je.Backend,
		Request: je.Request,
		Payload: payload,
		Error:   je.Error,
	}
}
