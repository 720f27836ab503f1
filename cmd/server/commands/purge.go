package commands

import (
	"fmt"
	"time"

	"github.com/jrsteele09/fb-page-poster/internal/config"
	"github.com/spf13/cobra"
)

var idleFor time.Duration

// NewPurgeIdleCommand deletes stored workspaces nobody has touched recently. Useful with the
// postgres store when no server is running the janitor.
func NewPurgeIdleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-idle",
		Short: "Delete workspaces idle for longer than --idle-for",
		Args:  cobra.NoArgs,
		RunE:  runPurgeIdle,
	}
	cmd.Flags().DurationVar(&idleFor, "idle-for", 0, "Idle time before a workspace is purged (defaults to the configured TTL)")
	return cmd
}

func runPurgeIdle(cmd *cobra.Command, args []string) error {
	c := config.New()
	ttl := idleFor
	if ttl <= 0 {
		ttl = c.GetWorkspaceIdleTTL()
	}

	a, err := newApp(cmd.Context(), c)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer a.close()

	n, err := a.dashboard.PurgeIdle(cmd.Context(), time.Now().Add(-ttl))
	if err != nil {
		return fmt.Errorf("failed to purge: %w", err)
	}
	fmt.Printf("Purged %d idle workspace(s)\n", n)
	return nil
}
