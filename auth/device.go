package auth

import (
	"strings"

	"github.com/mssola/user_agent"
)

// DeviceInfo is what we record about the client that opened a session
type DeviceInfo struct {
	Type string
	OS   string
}

// DetectDevice derives the device type (browser or app) and OS from a User-Agent header
func DetectDevice(userAgent string) DeviceInfo {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return DeviceInfo{}
	}

	ua := user_agent.New(userAgent)
	name, _ := ua.Browser()
	os := ua.OSInfo().Name

	switch {
	case ua.Bot():
		name = "Bot"
	case strings.HasPrefix(userAgent, "Dart/"), strings.HasPrefix(userAgent, "Immich_"):
		name = "Mobile App"
	case name == "" && ua.Mobile():
		name = "Mobile"
	}

	return DeviceInfo{Type: name, OS: os}
}
