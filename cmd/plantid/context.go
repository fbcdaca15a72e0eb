package main

import (
	"context"
	"strings"
	"sync"

	"go-plant-identifier/internal/config"
	"go-plant-identifier/internal/container"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// extra container options, used by tests
	containerOptions []container.Option
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		var (
			cfg *config.Config
			err error
		)
		if path != "" {
			cfg, err = config.Load(path)
		} else {
			cfg, err = config.LoadFromEnv()
		}
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.LogLevel = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withContainer builds the dependency graph for one command and releases
// it afterwards
func (c *commandContext) withContainer(ctx context.Context, fn func(*container.Container) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	deps, err := container.NewContainer(ctx, cfg, c.containerOptions...)
	if err != nil {
		return err
	}
	runErr := fn(deps)
	if closeErr := deps.Close(); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}
