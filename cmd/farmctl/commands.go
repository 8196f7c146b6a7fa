package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/farmsync/internal/auth"
)

func (c *cli) loginCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:     "login <username>",
		Short:   "Log in and store the session locally",
		GroupID: "session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("FARM_PASSWORD")
			}
			if password == "" {
				return errors.New("a password is required (--password or FARM_PASSWORD)")
			}
			if err := c.client.Auth.Authenticate(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Revoke the session and forget it locally",
		GroupID: "session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.client.Auth.CheckAuth(cmd.Context())
			if err := c.client.Auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Short:   "Show the logged in user",
		GroupID: "session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.client.Auth.CheckAuth(cmd.Context()) {
				return auth.ErrNotAuthenticated
			}
			return printJSON(cmd.OutOrStdout(), c.client.Auth.User())
		},
	}
}

// requestCommand builds get/post/put/delete. The path is either a full
// /api/... path or a bare resource such as "machines/3".
func (c *cli) requestCommand(name, method string, withBody bool) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:     name + " <path>",
		Short:   fmt.Sprintf("Send a %s through the gateway", method),
		GroupID: "records",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !c.client.Auth.CheckAuth(ctx) {
				return auth.ErrNotAuthenticated
			}

			var body []byte
			if withBody {
				var err error
				if body, err = readData(data); err != nil {
					return err
				}
			}

			resp, err := c.client.Gateway.Request(ctx, method, apiPath(args[0]), body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	if withBody {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON body, or @file to read it from a file")
		_ = cmd.MarkFlagRequired("data")
	}
	return cmd
}

func (c *cli) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Short:   "Replicate continuously until interrupted",
		GroupID: "sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.client.Run(cmd.Context())
		},
	}
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show connectivity and changes waiting to be pushed",
		GroupID: "sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			online := c.client.Monitor.Probe(ctx)
			if err := c.client.Sync.PollPending(ctx); err != nil {
				return err
			}

			st := c.client.Sync.Status()
			raw, err := json.Marshal(struct {
				Online       bool           `json:"online"`
				Remote       string         `json:"remote"`
				Pending      map[string]int `json:"pending"`
				PendingTotal int            `json:"pending_total"`
			}{online, c.client.API.BaseURL(), st.Pending, st.PendingTotal})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func apiPath(arg string) string {
	if strings.HasPrefix(arg, "/") || strings.Contains(arg, "://") {
		return arg
	}
	return "/api/" + arg
}

func readData(data string) ([]byte, error) {
	if file, ok := strings.CutPrefix(data, "@"); ok {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return raw, nil
	}
	return []byte(data), nil
}
