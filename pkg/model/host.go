package model

// Host is a scheduling target for agent processes. Running is mutated only
// by the host registry; it never exceeds Max.
type Host struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Dir     string `json:"dir"` // working directory for agents on this host
	Max     int    `json:"max"`
	Running int    `json:"running"`
}

// HasCapacity returns true if the host can take another agent.
func (h *Host) HasCapacity() bool {
	return h.Running < h.Max
}
