package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/app"
	"github.com/mamadbah2/farmsync/internal/config"
	"github.com/mamadbah2/farmsync/pkg/logger"
)

type cli struct {
	envFile  string
	logLevel string
	offline  bool

	client *app.Client
	logger *zap.Logger
}

// run executes farmctl with args and releases the client afterwards, even
// when the command failed.
func run(ctx context.Context, args []string, out io.Writer) error {
	root, c := newRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	defer c.close()
	return root.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:          "farmctl",
		Short:        "Offline-first client for the farm server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env", "", "path to an env file")
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.BoolVar(&c.offline, "offline", false, "never contact the server, serve from the local store")

	root.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "records", Title: "Record Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)
	root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.requestCommand("get", "GET", false),
		c.requestCommand("post", "POST", true),
		c.requestCommand("put", "PUT", true),
		c.requestCommand("delete", "DELETE", false),
		c.syncCommand(),
		c.statusCommand(),
	)
	return root, c
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err
	}

	c.logger, err = logger.New(logger.Options{Level: c.logLevel, Console: true})
	if err != nil {
		return err
	}

	c.client, err = app.NewClient(cmd.Context(), cfg.Client, c.logger)
	if err != nil {
		return err
	}
	if c.offline {
		c.client.Monitor.ForceOffline(true)
	}
	return nil
}

func (c *cli) close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	_ = c.logger.Sync()
	return err
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Not JSON; print as is.
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
