// Package env provides facts about the host a node runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID scopes the protected machine ID to this application.
const AppID = "canlink"

// MachineID retrieves an ID identifying the machine, stable across
// restarts. The raw machine ID is hashed with AppID so it isn't exposed on
// the network. Falls back to the hostname.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:12]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "node"
}
