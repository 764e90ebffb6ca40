package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ServerPingResponse is returned by GET /server-info/ping
type ServerPingResponse struct {
	Res string `json:"res"`
}

// ServerVersionResponse is returned by GET /server-info/version
type ServerVersionResponse struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v ServerVersionResponse) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseServerVersion parses "1.2.3" or "v1.2.3"; missing parts are zero
func ParseServerVersion(s string) (ServerVersionResponse, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) == 0 || len(parts) > 3 {
		return ServerVersionResponse{}, fmt.Errorf("invalid version %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return ServerVersionResponse{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return ServerVersionResponse{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
