package commands

import (
	"context"

	"go.uber.org/zap"
)

// ServerInfo prints the server version and status for the saved login
type ServerInfo struct {
	deps Deps
}

func NewServerInfo(deps Deps) *ServerInfo {
	return &ServerInfo{deps: deps.withDefaults()}
}

func (c *ServerInfo) Run(ctx context.Context) error {
	api, creds, err := c.deps.connect()
	if err != nil {
		return err
	}
	c.deps.Logger.Debug("Fetching server info", zap.String("instance_url", creds.InstanceURL))

	version, err := api.Version(ctx)
	if err != nil {
		return err
	}
	ping, err := api.Ping(ctx)
	if err != nil {
		return err
	}
	me, err := api.Me(ctx)
	if err != nil {
		return err
	}

	c.deps.printf("Server URL: %s\n", creds.InstanceURL)
	c.deps.printf("Server Version: %s\n", version)
	c.deps.printf("Server Status: %s\n", ping.Res)
	c.deps.printf("Logged in as %s\n", me.Email)
	return nil
}
