package main

import (
	"strings"

	"inkwell/internal/config"
)

// commandContext lazily loads configuration shared across commands.
type commandContext struct {
	configFlag *string
	apiFlag    *string

	cfg *config.Config
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, apiFlag: apiFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) apiClient() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	addr := cfg.Paths.APIBind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		addr = strings.TrimSpace(*c.apiFlag)
	}
	return newAPIClient(addr, cfg.Paths.APIToken), nil
}
