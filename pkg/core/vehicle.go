// pkg/core/vehicle.go
package core

// Vehicle is a fleet unit as delivered by the vehicle directory.
// ID is the directory's identifier; IMEI identifies the tracker device
// and is the key used against the telemetry endpoints.
type Vehicle struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IMEI      string `json:"imei"`
	Model     string `json:"model,omitempty"`
	RegNumber string `json:"regNumber,omitempty"`
}

// Key returns the identity key for comparisons: ID when present,
// falling back to IMEI for directories that omit it.
func (v Vehicle) Key() string {
	if v.ID != "" {
		return v.ID
	}
	return v.IMEI
}

// SameIdentity reports whether two vehicles refer to the same unit.
func (v Vehicle) SameIdentity(other Vehicle) bool {
	return v.Key() != "" && v.Key() == other.Key()
}
