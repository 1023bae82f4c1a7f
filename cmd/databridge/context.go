package main

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/app"
	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
)

const closeTimeout = 30 * time.Second

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := os.Getenv(config.FileEnvVar)
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.LoadFile(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) json() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// logger writes to stderr so command output on stdout stays parseable.
func (c *commandContext) logger(cfg *config.Config) *logger.Logger {
	return logger.NewWithOptions(os.Stderr, cfg.Server.Env, cfg.Server.LogLevel)
}

// withApp assembles the application for one command and closes it afterwards.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, c.logger(cfg), app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = a.Close(ctx)
	}()
	return fn(a)
}
