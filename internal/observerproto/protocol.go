package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// IntervalTicks streams one snapshot every N ticks. Zero or less means every tick.
	IntervalTicks int `json:"interval_ticks"`
	// Optional: only report these worlds (by name).
	Worlds []string `json:"worlds,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	RunID           string   `json:"run_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Worlds          []string `json:"worlds"`
}

// Server -> Client. Also the body of GET /admin/v1/observer/snapshot.
type SnapshotMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Tick            uint64       `json:"tick"`
	SimTime         float64      `json:"sim_time"`
	Worlds          []WorldState `json:"worlds"`
}

type WorldState struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Parent     int    `json:"parent,omitempty"`
	Children   []int  `json:"children,omitempty"`
	Active     bool   `json:"active"`
	LastActive bool   `json:"last_active"`

	Agents   []AgentState  `json:"agents,omitempty"`
	Switches []SwitchState `json:"switches,omitempty"`
}

type AgentState struct {
	ID    uint64 `json:"id"`
	Kind  string `json:"kind"`
	AI    string `json:"ai"`
	State string `json:"state,omitempty"`
	Shown bool   `json:"shown"`

	Pos [3]float64 `json:"pos"`
	Rot [3]float64 `json:"rot"`
	T   float64    `json:"t"`
}

type SwitchState struct {
	Name        string `json:"name"`
	Initialized bool   `json:"initialized"`
	Fired       int    `json:"fired,omitempty"`
}

// Client -> Server. Queue a world command; it is applied at the start of the next tick.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Op              string `json:"op"` // ACTIVATE | INACTIVATE | RESTORE
	World           string `json:"world"`
	Children        bool   `json:"children"`
}

// Server -> Client.
type CommandAckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Op              string `json:"op"`
	World           string `json:"world"`
	Queued          bool   `json:"queued"`
	Error           string `json:"error,omitempty"`
}
