package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// ledgerCmd prints the governance ledger of verified tools
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show verified tools and their governance policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tools, err := newClient().GetVerifiedTools(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(tools) == 0 {
			_, _ = fmt.Fprintln(out, headerStyle.Render("🛡 No verified tools"))
			return nil
		}
		_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("🛡 %d verified tool(s)", len(tools))))
		_, _ = fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Tool")+"\t"+titleStyle.Render("Trust")+"\t"+titleStyle.Render("Scan")+"\t"+titleStyle.Render("Verified by")+"\t"+titleStyle.Render("Approval")+"\t"+titleStyle.Render("Rate")+"\t"+titleStyle.Render("Cost")+"\t")
		_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))
		for _, t := range tools {
			v, g := t.Verification, t.Governance

			scan := failStyle.Render("failed")
			if v.SecurityScanPassed {
				scan = okStyle.Render("passed")
			}
			approval := "no"
			if g.ApprovalRequired {
				approval = warnStyle.Render("required")
			}
			rate := "—"
			if g.RateLimitPerMinute > 0 {
				rate = fmt.Sprintf("%d/min", g.RateLimitPerMinute)
			}

			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t$%.4f\t\n",
				t.Name,
				countStyle.Render(fmt.Sprintf("%.0f%%", trustPercent(v.TrustScore))),
				scan,
				v.VerifiedBy,
				approval,
				rate,
				g.CostPerExecution)
		}
		return w.Flush()
	},
}

// trustPercent accepts scores on either a 0-1 or a 0-100 scale
func trustPercent(score float64) float64 {
	if score <= 1 {
		return score * 100
	}
	return score
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}
