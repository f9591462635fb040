// Package mdns provides optional mDNS/Bonjour service advertisement.
//
// When enabled, the uplink advertises itself on the local network using
// DNS-SD (DNS Service Discovery), allowing remote orchestrators to discover
// it without manual IP entry. This is an opt-in feature for security.
//
// The mDNS advertisement includes:
//   - Service type: _uplink._tcp
//   - TXT records with protocol version and server name
//
// Discovery only reveals presence; the API key is still required to connect.
package mdns

import (
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for uplink servers.
// Follows the standard Bonjour naming convention: _<service>._<protocol>
const ServiceType = "_uplink._tcp"

// ProtocolVersion identifies the mDNS protocol version for compatibility.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the server port to advertise (e.g., 7465).
	Port int

	// Name is a human-readable name for this server.
	// Defaults to the system hostname if empty.
	Name string

	// ServerName is the product name included in TXT records so
	// orchestrators can filter for uplink servers.
	ServerName string
}

// Advertiser manages mDNS/DNS-SD service registration.
// It advertises the uplink on the local network so orchestrators can
// discover it without typing IP addresses.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		config: cfg,
	}
}

// Start begins advertising the service via mDNS.
// It registers the service with DNS-SD so it can be discovered by
// orchestrators on the same local network.
//
// Start is safe to call multiple times; subsequent calls are no-ops
// if already running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Already running
	if a.server != nil {
		return nil
	}

	// Determine the service name (instance name)
	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "uplink"
		} else {
			name = hostname
		}
	}

	// Build TXT records for service metadata.
	// These provide information to clients before they connect:
	// - version: Protocol version for compatibility checks
	// - name: Human-readable server name
	// - server: Product name for filtering
	txtRecords := []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("name=%s", name),
	}
	if a.config.ServerName != "" {
		txtRecords = append(txtRecords, fmt.Sprintf("server=%s", a.config.ServerName))
	}

	// Register the mDNS service.
	// The service type is "_uplink._tcp" on the ".local" domain.
	// The port and TXT records are included in the advertisement.
	server, err := zeroconf.Register(
		name,        // Instance name (e.g., "build-box")
		ServiceType, // Service type
		"local.",    // Domain
		a.config.Port,
		txtRecords,
		nil, // Network interfaces (nil = all)
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops the mDNS advertisement and unregisters the service.
// It is safe to call Stop multiple times or on an advertiser that
// was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}
