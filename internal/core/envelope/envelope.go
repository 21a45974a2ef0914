package envelope

import (
	"encoding/json"
	"fmt"
)

// Envelope is the normalized event flowing through the pipeline. Data
// keeps the raw inbound bytes so the dispatcher can forward the exact
// body unchanged.
type Envelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Source string          `json:"source"`
}

// New builds an envelope from already-serialized data.
func New(event string, data []byte, source string) Envelope {
	return Envelope{Event: event, Data: json.RawMessage(data), Source: source}
}

// Marshal builds an envelope by serializing an event payload struct.
func Marshal(event string, payload interface{}, source string) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data, Source: source}, nil
}

// MessageData decodes the envelope payload as a message event. Upstream
// emitters sometimes nest the message under a data field; both shapes
// are accepted.
func (e Envelope) MessageData() (*MessageData, error) {
	raw := unwrapDataField(e.Data)

	var data MessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode message data: %w", err)
	}
	return &data, nil
}

// ConnectionData decodes the envelope payload as a connection update.
func (e Envelope) ConnectionData() (*ConnectionData, error) {
	raw := unwrapDataField(e.Data)

	var data ConnectionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode connection data: %w", err)
	}
	return &data, nil
}

// QRData decodes the envelope payload as a QR update.
func (e Envelope) QRData() (*QRData, error) {
	raw := unwrapDataField(e.Data)

	var data QRData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode qr data: %w", err)
	}
	return &data, nil
}

// ConnectionData carries the raw state string of a connection update.
// Emitters disagree on the field name, so both are read.
type ConnectionData struct {
	State      string `json:"state,omitempty"`
	Connection string `json:"connection,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// RawState returns whichever state field is populated.
func (c *ConnectionData) RawState() string {
	if c.State != "" {
		return c.State
	}
	return c.Connection
}

// QRData carries a pairing QR update.
type QRData struct {
	QRCode string `json:"qrcode,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// unwrapDataField peels one {"data": {...}} wrapper when present.
func unwrapDataField(raw json.RawMessage) json.RawMessage {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && len(probe.Data) > 0 && probe.Data[0] == '{' {
		return probe.Data
	}
	return raw
}
