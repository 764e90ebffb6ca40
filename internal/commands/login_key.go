package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"immich-service/internal/session"

	"go.uber.org/zap"
)

// LoginKey verifies an API key against a server and saves it
type LoginKey struct {
	deps Deps
}

func NewLoginKey(deps Deps) *LoginKey {
	return &LoginKey{deps: deps.withDefaults()}
}

// Run prompts for whichever of instanceURL and apiKey is empty
func (c *LoginKey) Run(ctx context.Context, instanceURL, apiKey string) error {
	input := bufio.NewReader(c.deps.In)

	var err error
	if instanceURL == "" {
		if instanceURL, err = c.prompt(input, "Enter server URL: "); err != nil {
			return err
		}
	}
	if apiKey == "" {
		if apiKey, err = c.prompt(input, "Enter API key: "); err != nil {
			return err
		}
	}
	instanceURL = strings.TrimRight(instanceURL, "/")

	c.deps.printf("Logging in to %s\n", instanceURL)
	api := c.deps.Connect(instanceURL, apiKey)

	if _, err := api.Ping(ctx); err != nil {
		return fmt.Errorf("server %s is not reachable: %w", instanceURL, err)
	}
	me, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("api key was rejected: %w", err)
	}

	if err := c.deps.Store.Save(session.Credentials{InstanceURL: instanceURL, APIKey: apiKey}); err != nil {
		return err
	}

	c.deps.Logger.Debug("Saved credentials", zap.String("path", c.deps.Store.Path()), zap.String("user_id", me.ID))
	c.deps.printf("Logged in as %s\n", me.Email)
	c.deps.printf("Wrote auth info to %s\n", c.deps.Store.Path())
	return nil
}

func (c *LoginKey) prompt(input *bufio.Reader, label string) (string, error) {
	c.deps.printf("%s", label)
	line, err := input.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(strings.TrimPrefix(label, "Enter "), ": "))
	}
	return value, nil
}
