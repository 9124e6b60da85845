package virsh

// Domain states as reported by virsh. The state string is authoritative only
// at read time; nothing here is cached between requests.
const (
	StateRunning     = "running"
	StateIdle        = "idle"
	StatePaused      = "paused"
	StateInShutdown  = "in shutdown"
	StateShutOff     = "shut off"
	StateCrashed     = "crashed"
	StatePMSuspended = "pmsuspended"
	StateUnknown     = "unknown"
)

// IsActiveState reports whether a domain in the given state can be expected
// to answer address queries. Paused guests are included even though agent
// queries against them rarely succeed.
func IsActiveState(state string) bool {
	switch state {
	case StateRunning, StateIdle, StatePaused:
		return true
	}
	return false
}

// VM is one row of the domain listing. ID is assigned by the hypervisor only
// while the domain runs and is reassigned across restarts; Name is the
// stable identity.
type VM struct {
	ID    *int   `json:"id,omitempty"`
	Name  string `json:"name"`
	State string `json:"state"`
	UUID  string `json:"uuid,omitempty"`
}

// Status is the dominfo view of a single domain, with resource telemetry.
// Numeric fields are nil when the tool reported a sentinel or garbage value.
type Status struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	ID        *int   `json:"id,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	MaxMemory string `json:"max_memory,omitempty"`
	Memory    string `json:"memory,omitempty"`
	VCPU      *int   `json:"vcpu,omitempty"`
	CPUTime   string `json:"cpu_time,omitempty"`
}

// NetworkInterface is one address of one guest interface, normalized from
// either domifaddr output or a guest-agent reply. An interface holding three
// addresses yields three records sharing Name and MAC.
type NetworkInterface struct {
	Name     string  `json:"name"`
	MAC      *string `json:"mac,omitempty"`
	Protocol *string `json:"protocol,omitempty"`
	Address  *string `json:"address,omitempty"`
}

// DiskMapping is one row of domblklist. Source is nil for empty removable
// media.
type DiskMapping struct {
	Target string  `json:"target"`
	Source *string `json:"source,omitempty"`
}
