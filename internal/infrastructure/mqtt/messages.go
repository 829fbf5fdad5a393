package mqtt

// StatusMessage is published to SystemStatus on connect, on graceful
// shutdown, and by the broker as the LWT.
type StatusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthMessage is published, retained, to TerminalHealth after every
// health or status probe.
type HealthMessage struct {
	Endpoint  string  `json:"endpoint"`
	Operation string  `json:"operation"`
	OK        bool    `json:"ok"`
	Transport string  `json:"transport,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
	Attempts  int     `json:"attempts"`
	Error     string  `json:"error,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// EventMessage is published to TerminalEvent after every mutating
// operation, successful or not.
type EventMessage struct {
	Action    string         `json:"action"`
	Endpoint  string         `json:"endpoint"`
	Target    string         `json:"target,omitempty"`
	Transport string         `json:"transport,omitempty"`
	Outcome   string         `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}
