package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal/api"
)

var (
	actionsConversation string
	actionsLimit        int
	actionsOffset       int
)

// actionsCmd prints the action feed
var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Show the agent's action feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actions, err := newClient().GetActions(cmd.Context(), actionsConversation, actionsLimit, actionsOffset)
		if err != nil {
			return fmt.Errorf("failed to load actions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(actions) == 0 {
			_, _ = fmt.Fprintln(out, headerStyle.Render("📜 No actions recorded"))
			return nil
		}
		_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📜 %d action(s)", len(actions))))
		_, _ = fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, titleStyle.Render("When")+"\t"+titleStyle.Render("Status")+"\t"+titleStyle.Render("Action")+"\t"+titleStyle.Render("Detail")+"\t")
		_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))
		for _, a := range actions {
			title := a.Title
			if a.ToolName != "" {
				title += " (" + a.ToolName + ")"
			}
			detail := truncate(a.Detail, 60)
			if a.GithubPRURL != "" {
				detail = linkStyle.Render(a.GithubPRURL)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", dateStyle(a.Timestamp), actionStatus(a), title, detail)
		}
		return w.Flush()
	},
}

func actionStatus(a api.Action) string {
	switch strings.ToLower(a.Status) {
	case "success", "completed", "done":
		return okStyle.Render(a.Status)
	case "error", "failed":
		return failStyle.Render(a.Status)
	default:
		return warnStyle.Render(a.Status)
	}
}

// dateStyle formats an RFC3339 timestamp relative to now
func dateStyle(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return metaStyle.Render(ts)
	}
	t = t.Local()
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return metaStyle.Render(t.Format("Today 15:04"))
	case diff < 7*24*time.Hour:
		return metaStyle.Render(t.Format("Mon 15:04"))
	case diff < 365*24*time.Hour:
		return metaStyle.Render(t.Format("Jan 02 15:04"))
	default:
		return metaStyle.Render(t.Format("2006-01-02"))
	}
}

func init() {
	rootCmd.AddCommand(actionsCmd)
	actionsCmd.Flags().StringVar(&actionsConversation, "conversation", "", "Only show actions of this conversation")
	actionsCmd.Flags().IntVar(&actionsLimit, "limit", 20, "Maximum number of actions")
	actionsCmd.Flags().IntVar(&actionsOffset, "offset", 0, "Number of actions to skip")
}
