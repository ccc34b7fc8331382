package rpc

// OpenRequest mirrors session.OpenOptions over the wire. Enum fields carry
// the same small-integer encoding session/transport use internally.
type OpenRequest struct {
	Name             string `json:"name"`
	Tag              string `json:"tag"`
	InitialReadState int    `json:"initial_read_state"`
	BaudRate         int    `json:"baud_rate"`
	DataBits         int    `json:"data_bits"`
	Parity           int    `json:"parity"`
	StopBits         int    `json:"stop_bits"`
	FlowControl      int    `json:"flow_control"`
	TimeoutMs        int64  `json:"timeout_ms"`
}

type OpenResponse struct{}

type CloseRequest struct {
	Name string `json:"name"`
}

type CloseResponse struct{}

type WriteRequest struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

type WriteResponse struct{}

type BroadcastRequest struct {
	Payload []byte `json:"payload"`
}

type BroadcastResponse struct {
	Recipients int `json:"recipients"`
}

type SubscribeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type SubscribeResponse struct{}

type UnsubscribeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type UnsubscribeResponse struct{}

type ToggleRequest struct {
	Name string `json:"name"`
}

type ToggleResponse struct {
	ReadState int `json:"read_state"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Ports []ManagedPortWire `json:"ports"`
}

// ManagedPortWire is the wire projection of session.ManagedPort.
type ManagedPortWire struct {
	Name          string   `json:"name"`
	Open          bool     `json:"open"`
	SessionID     string   `json:"session_id,omitempty"`
	ReadState     int      `json:"read_state"`
	Subscriptions []string `json:"subscriptions"`
	SubscribedTo  []string `json:"subscribed_to"`
	LastUsedTag   string   `json:"last_used_tag,omitempty"`
	BytesSent     uint64   `json:"bytes_sent"`
	BytesReceived uint64   `json:"bytes_received"`
	Errors        uint64   `json:"errors"`
}

type ScanRequest struct{}

type ScanResponse struct {
	Names []string `json:"names"`
}

type EventsRequest struct{}

// EventWire is the wire projection of broker.Event; exactly one of Ports,
// Packet or Message is populated, selected by Kind.
type EventWire struct {
	Kind    string          `json:"kind"` // "ports_changed" | "packet" | "error"
	Ports   *StatusResponse `json:"ports,omitempty"`
	Packet  *PacketWire     `json:"packet,omitempty"`
	Message string          `json:"message,omitempty"`
}

// PacketWire is the wire projection of session.Packet / session.PacketError.
type PacketWire struct {
	Port        string `json:"port"`
	TimestampMs int64  `json:"timestamp_ms"`
	Incoming    bool   `json:"incoming"`
	Outgoing    bool   `json:"outgoing"`
	Line        []byte `json:"line,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
	Origin      string `json:"origin,omitempty"`     // "direct" | "broadcast" | "subscription"
	OriginFrom  string `json:"origin_from,omitempty"` // set when Origin == "subscription"
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"` // "incoming_codec" | "incoming_io" | "outgoing_io"
}
