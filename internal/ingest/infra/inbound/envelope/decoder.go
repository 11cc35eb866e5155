package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	ingestDomain "github.com/davicafu/logistrack/internal/ingest/domain"
	"github.com/davicafu/logistrack/shared/events"
)

// legacyWrapper reconoce el formato serializado s:<len>:"<json>"; del publicador PHP.
var legacyWrapper = regexp.MustCompile(`(?s)s:\d+:"(.*)";`)

var DefaultFields = []string{"message", "data"}

var (
	errNotObject    = errors.New("JSON value is not an object")
	errTrailingData = errors.New("unexpected data after JSON value")
)

// Decoder extrae (id, tipo, payload) de una entrada del stream.
type Decoder struct {
	fields []string
}

// NewDecoder usa fields en orden como candidatos al campo principal.
func NewDecoder(fields ...string) *Decoder {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Decoder{fields: fields}
}

func (d *Decoder) Decode(msg ingestDomain.RawMessage) (events.Event, error) {
	fail := func(reason string, err error) (events.Event, error) {
		return events.Event{}, &ingestDomain.DecodeError{MessageID: msg.ID, Reason: reason, Err: err}
	}

	raw, ok := d.primaryField(msg)
	if !ok {
		return fail("no payload field among "+strings.Join(d.fields, ","), nil)
	}
	if m := legacyWrapper.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	outer, err := decodeObject(raw)
	if err != nil {
		return fail("invalid envelope JSON", err)
	}

	body := outer
	if rawBody, ok := outer["body"]; ok {
		switch b := rawBody.(type) {
		case string:
			if body, err = decodeObject(b); err != nil {
				return fail("invalid body JSON", err)
			}
		case map[string]interface{}:
			body = b
		default:
			return fail("body is neither an object nor a JSON string", nil)
		}
	}

	eventType := firstString(body, "eventType", "event_type", "type")
	if eventType == "" {
		return fail("missing eventType", nil)
	}

	var payload map[string]interface{}
	switch p := body["payload"].(type) {
	case map[string]interface{}:
		payload = p
	case string:
		if payload, err = decodeObject(p); err != nil {
			return fail("invalid payload JSON", err)
		}
	case nil:
		return fail("missing payload", nil)
	default:
		return fail("payload is not an object", nil)
	}

	return events.Event{ID: msg.ID, Type: eventType, Payload: payload}, nil
}

func (d *Decoder) primaryField(msg ingestDomain.RawMessage) (string, bool) {
	for _, f := range d.fields {
		if v, ok := msg.Fields[f]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// decodeObject conserva los números como json.Number para no perder enteros grandes.
func decodeObject(s string) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	// Sólo se admite espacio en blanco tras el objeto.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
