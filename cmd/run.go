package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mama-run/mama/internal/agentloop"
	"github.com/mama-run/mama/internal/config"
)

func runCmd() *cobra.Command {
	var agentID string
	c := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a single prompt through the agent and print its response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			app, err := buildApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer app.Shutdown()

			channelKey := "cli|run"
			if agentID != "" {
				channelKey = "cli|run|" + agentID
			}
			res, err := app.Loop.Run(context.Background(), agentloop.RunRequest{
				ChannelKey: channelKey,
				Source:     "cli",
				Message:    strings.Join(args, " "),
				AgentID:    agentID,
			})
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			fmt.Println(res.Response)
			return nil
		},
	}
	c.Flags().StringVar(&agentID, "agent", "", "run as a named multi_agent.agents.<name> sub-agent instead of the default role")
	return c
}
