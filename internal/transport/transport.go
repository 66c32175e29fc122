package transport

import "fmt"

// Protocol selects which wire format a Transport encodes fixes as.
type Protocol string

const (
	ProtocolNMEA Protocol = "nmea"
	ProtocolMSP  Protocol = "msp"
)

// Transport encodes fused fixes in the configured wire protocol and
// publishes them through a reconnecting Sink.
type Transport struct {
	protocol Protocol
	sink     *Sink
}

// New builds a Transport for the given protocol, backed by sink.
func New(protocol Protocol, sink *Sink) (*Transport, error) {
	switch protocol {
	case ProtocolNMEA, ProtocolMSP:
	default:
		return nil, fmt.Errorf("transport: unknown protocol %q", protocol)
	}
	return &Transport{protocol: protocol, sink: sink}, nil
}

// Send encodes fix per the configured protocol and writes it to the sink.
func (t *Transport) Send(fix Fix) error {
	var payload []byte
	switch t.protocol {
	case ProtocolMSP:
		payload = EncodeMSP(fix)
	default:
		payload = []byte(EncodeNMEA(fix))
	}
	return t.sink.Send(payload)
}

// Reconnects returns the underlying sink's cumulative reconnect count.
func (t *Transport) Reconnects() int { return t.sink.Reconnects() }

// Close releases the underlying sink.
func (t *Transport) Close() error { return t.sink.Close() }
