package commands

import "context"

// Logout forgets the saved login
type Logout struct {
	deps Deps
}

func NewLogout(deps Deps) *Logout {
	return &Logout{deps: deps.withDefaults()}
}

func (c *Logout) Run(ctx context.Context) error {
	if err := c.deps.Store.Delete(); err != nil {
		return err
	}
	c.deps.printf("Removed auth file %s\n", c.deps.Store.Path())
	return nil
}
