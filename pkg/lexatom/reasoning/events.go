package reasoning

import (
	"github.com/tidwall/gjson"
)

// Event kinds emitted by a Pengines-style engine.
const (
	EventCreate  = "create"
	EventDestroy = "destroy"
	EventSuccess = "success"
	EventFailure = "failure"
	EventError   = "error"
	EventOutput  = "output"
)

// Interpret flattens an engine response into outcomes. raw is one JSON event
// object or an array of them. create and destroy events wrap a nested event
// under "answer" and "data" respectively.
//
// Output events only occur on diagnostics such as syntax errors and are
// reported as Error outcomes.
func Interpret(raw []byte) ([]Outcome, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ProtocolViolationError{Reason: "response is not valid JSON"}
	}

	doc := gjson.ParseBytes(raw)
	events := []gjson.Result{doc}
	if doc.IsArray() {
		events = doc.Array()
	}

	var outcomes []Outcome
	for _, ev := range events {
		var err error
		outcomes, err = interpretEvent(ev, outcomes)
		if err != nil {
			return nil, err
		}
	}
	return outcomes, nil
}

func interpretEvent(ev gjson.Result, out []Outcome) ([]Outcome, error) {
	if !ev.IsObject() {
		return nil, &ProtocolViolationError{Reason: "event is not an object"}
	}
	kind := ev.Get("event")
	if !kind.Exists() {
		return nil, &ProtocolViolationError{Reason: "event has no 'event' key"}
	}

	switch kind.String() {
	case EventCreate:
		return interpretEvent(ev.Get("answer"), out)

	case EventDestroy:
		return interpretEvent(ev.Get("data"), out)

	case EventSuccess:
		data := ev.Get("data")
		if !data.IsArray() {
			return nil, &ProtocolViolationError{Kind: EventSuccess, Reason: "'data' is not a list"}
		}
		for _, solution := range data.Array() {
			if !solution.IsObject() {
				return nil, &ProtocolViolationError{Kind: EventSuccess, Reason: "solution is not an object"}
			}
			var bindings []Binding
			solution.ForEach(func(k, v gjson.Result) bool {
				bindings = append(bindings, Binding{Variable: k.String(), Value: text(v)})
				return true
			})
			out = append(out, Success(bindings...))
		}
		return out, nil

	case EventFailure:
		return append(out, Failure()), nil

	case EventError, EventOutput:
		return append(out, Error(text(ev.Get("data")))), nil

	default:
		return nil, &ProtocolViolationError{Kind: kind.String(), Reason: "unknown event kind"}
	}
}

// text coerces a JSON value to a string: strings verbatim, anything else as
// its JSON text.
func text(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return v.Raw
}
