package session

// Management console types reported in the X-MC-Type response header.
const (
	mcTypeHMC = "HMC"
	mcTypePVM = "PVM"
	mcTypeIVM = "IVM"
)

// MCType returns the management console type reported during logon, or
// empty if the session has not logged on.
func (s *Session) MCType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mcType
}

// IsHMC reports whether the endpoint is a Hardware Management Console.
func (s *Session) IsHMC() bool {
	return s.MCType() == mcTypeHMC
}

// IsLocalAPI reports whether the endpoint is the NovaLink local
// management API rather than a remote console.
func (s *Session) IsLocalAPI() bool {
	return s.MCType() == mcTypePVM
}

// SchemaVersion returns the schema version advertised in the logon
// response, or empty if the session has not logged on.
func (s *Session) SchemaVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaVersion
}

// Traits captures behavioral differences between console types that
// callers would otherwise have to switch on by hand.
type Traits struct {
	mcType string
}

// Traits returns the capability traits of the logged-on endpoint.
func (s *Session) Traits() Traits {
	return Traits{mcType: s.MCType()}
}

// LocalAPI reports whether the endpoint is the NovaLink local API.
func (t Traits) LocalAPI() bool {
	return t.mcType == mcTypePVM
}

// HMC reports whether the endpoint is a Hardware Management Console.
func (t Traits) HMC() bool {
	return t.mcType == mcTypeHMC
}

// VNetAware reports whether virtual networks must be maintained through
// the VirtualNetwork root object. Local endpoints manage them
// implicitly.
func (t Traits) VNetAware() bool {
	return !t.LocalAPI()
}

// DynamicPVID reports whether the endpoint can change a virtual network
// PVID without recreating the adapter.
func (t Traits) DynamicPVID() bool {
	return t.LocalAPI()
}
