package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal/api"
	"golang.org/x/sync/errgroup"
)

var healthcheckVerbose bool

type probe struct {
	name   string
	run    func(ctx context.Context, c *api.Client) (string, error)
	detail string
	err    error
	took   time.Duration
}

// healthcheckCmd represents the health command
var healthcheckCmd = &cobra.Command{
	Use:     "health",
	Aliases: []string{"healthcheck"},
	Short:   "Check that the hub is reachable and serving",
	Long: `Check the health of the hub by probing, concurrently:
  • The liveness endpoint
  • The tool marketplace
  • The action feed
  • The governance ledger

The command fails if any probe fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		client := newClient()

		_, _ = fmt.Fprintln(out, headerStyle.Render("🔍 Hub Health Check"))
		_, _ = fmt.Fprintln(out, metaStyle.Render(client.BaseURL()))
		_, _ = fmt.Fprintln(out)

		probes := healthProbes()
		var g errgroup.Group
		for i := range probes {
			p := &probes[i]
			g.Go(func() error {
				start := time.Now()
				p.detail, p.err = p.run(cmd.Context(), client)
				p.took = time.Since(start)
				return p.err
			})
		}
		failed := g.Wait()

		for _, p := range probes {
			if p.err != nil {
				_, _ = fmt.Fprintf(out, "%s %s: %v\n", failStyle.Render("❌"), p.name, p.err)
				continue
			}
			line := fmt.Sprintf("%s %s", okStyle.Render("✅"), p.name)
			if p.detail != "" {
				line += ": " + p.detail
			}
			if healthcheckVerbose {
				line += " " + metaStyle.Render(p.took.Round(time.Millisecond).String())
			}
			_, _ = fmt.Fprintln(out, line)
		}
		_, _ = fmt.Fprintln(out)

		if failed != nil {
			return fmt.Errorf("hub is unhealthy: %w", failed)
		}
		_, _ = fmt.Fprintln(out, okStyle.Render("All checks passed"))
		return nil
	},
}

func healthProbes() []probe {
	return []probe{
		{
			name: "Liveness",
			run: func(ctx context.Context, c *api.Client) (string, error) {
				h, err := c.Health(ctx)
				if err != nil {
					return "", err
				}
				detail := h.Status
				if h.Service != "" {
					detail += " (" + h.Service
					if h.Version != "" {
						detail += " " + h.Version
					}
					detail += ")"
				}
				return detail, nil
			},
		},
		{
			name: "Marketplace",
			run: func(ctx context.Context, c *api.Client) (string, error) {
				tools, err := c.ListTools(ctx, 1, 0)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("responding (%d tool(s) on first page)", len(tools)), nil
			},
		},
		{
			name: "Action feed",
			run: func(ctx context.Context, c *api.Client) (string, error) {
				if _, err := c.GetActions(ctx, "", 1, 0); err != nil {
					return "", err
				}
				return "responding", nil
			},
		},
		{
			name: "Governance ledger",
			run: func(ctx context.Context, c *api.Client) (string, error) {
				tools, err := c.GetVerifiedTools(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d verified tool(s)", len(tools)), nil
			},
		},
	}
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVar(&healthcheckVerbose, "timings", false, "Show probe timings")
}
