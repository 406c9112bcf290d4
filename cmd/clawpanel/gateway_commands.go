package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/loykin/clawpanel/pkg/client"
	"github.com/spf13/cobra"
)

// APIFlags selects the panel a remote command talks to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Username   string
	Password   string
}

func (f *APIFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.APIUrl, "api-url", client.DefaultBaseURL, "panel API URL")
	cmd.PersistentFlags().DurationVar(&f.APITimeout, "api-timeout", client.DefaultTimeout, "request timeout")
	cmd.PersistentFlags().StringVar(&f.Username, "username", "", "basic auth username")
	cmd.PersistentFlags().StringVar(&f.Password, "password", "", "basic auth password")
}

func (f *APIFlags) client() *client.Client {
	return client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Username: f.Username,
		Password: f.Password,
	})
}

func createGatewayCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Control the openclaw gateway of a running panel",
		Long: `Start, stop and inspect the gateway process supervised by a running panel.

Examples:
  clawpanel gateway start --port 18789
  clawpanel gateway status
  clawpanel gateway logs --lines 20 --api-url http://host:5000/api`,
	}
	flags.bind(cmd)

	var port int
	start := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := flags.client().StartGateway(cmd.Context(), port)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
	start.Flags().IntVar(&port, "port", 0, "gateway port (server default when 0)")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := flags.client().StopGateway(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := flags.client().GatewayStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	var lines int
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Print recent gateway output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGatewayLogs(cmd.Context(), cmd.OutOrStdout(), flags.client(), lines)
		},
	}
	logs.Flags().IntVar(&lines, "lines", 100, "number of lines")

	cmd.AddCommand(start, stop, status, logs)
	return cmd
}

func printGatewayLogs(ctx context.Context, w io.Writer, c *client.Client, lines int) error {
	out, err := c.GatewayLogs(ctx, lines)
	if err != nil {
		return err
	}
	for _, l := range out {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
