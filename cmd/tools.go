package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/api"
)

var (
	toolsQuery  string
	toolsPin    string
	toolsLimit  int
	toolsSkip   int
	searchLimit int
	toolsJSON   bool
)

// toolsCmd groups the marketplace commands
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Browse and run marketplace tools",
	Long:  `Browse, inspect, execute and delete tools registered in the hub marketplace.`,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List marketplace tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var tools []api.Tool
		err := internal.ShowProgress(cmd.Context(), "Loading marketplace", func() error {
			var err error
			tools, err = client.ListTools(cmd.Context(), toolsLimit, toolsSkip)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}

		tools = api.PinTool(api.FilterTools(tools, toolsQuery), toolsPin)
		if toolsJSON {
			return writeJSON(cmd.OutOrStdout(), tools)
		}
		displayTools(cmd.OutOrStdout(), tools, toolsPin)
		return nil
	},
}

var toolsSearchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Semantic search over the marketplace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		res, err := newClient().SearchTools(cmd.Context(), query, searchLimit)
		if err != nil {
			return fmt.Errorf("failed to search tools: %w", err)
		}
		if toolsJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("🔎 %d result(s) for %q", res.Count, res.Query)))
		_, _ = fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Name")+"\t"+titleStyle.Render("Score")+"\t"+titleStyle.Render("Description")+"\t")
		for _, t := range res.Tools {
			score := "—"
			if t.SimilarityScore != nil {
				score = strconv.FormatFloat(*t.SimilarityScore, 'f', 2, 64)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.Name, countStyle.Render(score), truncate(t.Description, 70))
		}
		return w.Flush()
	},
}

var toolsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a tool's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := newClient().GetTool(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				return fmt.Errorf("tool %q not found", args[0])
			}
			return fmt.Errorf("failed to get tool: %w", err)
		}
		if toolsJSON {
			return writeJSON(cmd.OutOrStdout(), tool)
		}
		displayTool(cmd.OutOrStdout(), tool)
		return nil
	},
}

var toolsCodeCmd = &cobra.Command{
	Use:   "code <name>",
	Short: "Print a tool's source code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := newClient().GetToolCode(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				return fmt.Errorf("no source code for tool %q", args[0])
			}
			return fmt.Errorf("failed to get tool code: %w", err)
		}
		if strings.TrimSpace(code.Code) == "" {
			return fmt.Errorf("no source code for tool %q", args[0])
		}
		printCode(cmd.OutOrStdout(), code.Code, code.Language)
		return nil
	},
}

var toolsExecCmd = &cobra.Command{
	Use:   "exec <name> [key=value...]",
	Short: "Execute a tool",
	Long: `Execute a marketplace tool with key=value parameters.

Empty values for optional parameters are not sent. Weather lookups are
summarised on one line; other results are printed as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseParams(args[1:])
		if err != nil {
			return err
		}

		client := newClient()
		tool, err := client.GetTool(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get tool: %w", err)
		}
		for _, name := range tool.Parameters.Required {
			if strings.TrimSpace(values[name]) == "" {
				return fmt.Errorf("missing required parameter %q", name)
			}
		}

		res, err := client.ExecuteTool(cmd.Context(), args[0], tool.ExecuteParams(values))
		if err != nil {
			return fmt.Errorf("failed to execute %s: %w", args[0], err)
		}
		if toolsJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		displayExecution(cmd.OutOrStdout(), res)
		return nil
	},
}

var toolsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tool from the marketplace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().DeleteTool(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete tool: %w", err)
		}
		msg := res.Message
		if msg == "" {
			msg = fmt.Sprintf("Deleted %s", args[0])
		}
		internal.PrintSuccess(cmd.OutOrStdout(), msg)
		return nil
	},
}

// parseParams turns key=value arguments into a map
func parseParams(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &internal.ParseError{Source: "params", Key: arg, Err: errors.New("expected key=value")}
		}
		values[key] = value
	}
	return values, nil
}

func displayTools(out io.Writer, tools []api.Tool, pinned string) {
	if len(tools) == 0 {
		_, _ = fmt.Fprintln(out, headerStyle.Render("🧰 No tools found"))
		return
	}

	_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("🧰 Found %d tool(s)", len(tools))))
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("Name")+"\t"+titleStyle.Render("Status")+"\t"+titleStyle.Render("Category")+"\t"+titleStyle.Render("Uses")+"\t"+titleStyle.Render("Description")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))
	for _, t := range tools {
		name := t.Name
		if pinned != "" && (t.ID == pinned || t.Name == pinned) {
			name = "📌 " + name
		}
		if t.Verified {
			name += " ✓"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			name,
			statusStyle(t.Status).Render(t.Status),
			t.Category,
			countStyle.Render(strconv.Itoa(t.UsageCount)),
			truncate(t.Description, 60))
	}
	_ = w.Flush()
}

func displayTool(out io.Writer, t *api.Tool) {
	_, _ = fmt.Fprintln(out, headerStyle.Render(t.Name))
	_, _ = fmt.Fprintf(out, "%s %s · %s", statusStyle(t.Status).Render(t.Status), t.Category, metaStyle.Render(fmt.Sprintf("%d use(s)", t.UsageCount)))
	if t.Verified {
		_, _ = fmt.Fprint(out, " · "+okStyle.Render("verified"))
	}
	_, _ = fmt.Fprintln(out)
	if t.Description != "" {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, wrapText(t.Description, termWidth(out)-2))
	}
	if len(t.Tags) > 0 {
		_, _ = fmt.Fprintln(out, metaStyle.Render("tags: "+strings.Join(t.Tags, ", ")))
	}

	if len(t.Parameters.Properties) > 0 {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, titleStyle.Render("Parameters"))
		names := make([]string, 0, len(t.Parameters.Properties))
		for name := range t.Parameters.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			line := "  " + name
			if prop, ok := t.Parameters.Properties[name].(map[string]any); ok {
				if typ, ok := prop["type"].(string); ok {
					line += " (" + typ + ")"
				}
				if desc, ok := prop["description"].(string); ok && desc != "" {
					line += " " + metaStyle.Render(desc)
				}
			}
			if t.IsRequired(name) {
				line += " " + warnStyle.Render("required")
			}
			_, _ = fmt.Fprintln(out, line)
		}
	}

	if docs := t.DocURLs(); len(docs) > 0 {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, titleStyle.Render("Links"))
		for _, d := range docs {
			_, _ = fmt.Fprintf(out, "  %s: %s\n", d.Label, linkStyle.Render(d.URL))
		}
	}

	if t.PreviewSnippet != "" {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, titleStyle.Render("Preview"))
		printCode(out, t.PreviewSnippet, "")
	}
}

func displayExecution(out io.Writer, res *api.ExecuteResponse) {
	if summary, ok := internal.FormatExecutionResult(res.Result); ok {
		internal.PrintSuccess(out, summary)
	} else {
		_ = writeJSON(out, res.Result)
	}

	if md := res.ExecutionMetadata; md != nil {
		cached := ""
		if md.Cached {
			cached = ", cached"
		}
		_, _ = fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("%s in %.0fms (%d API call(s)%s)", res.ExecutionID, md.DurationMS, md.APICallsMade, cached)))
	}
	for _, l := range res.Logs {
		_, _ = fmt.Fprintf(out, "  %s %s\n", idStyle.Render(l.Timestamp), l.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd, toolsSearchCmd, toolsShowCmd, toolsCodeCmd, toolsExecCmd, toolsDeleteCmd)
	toolsCmd.PersistentFlags().BoolVar(&toolsJSON, "json", false, "Print raw JSON")

	toolsListCmd.Flags().StringVarP(&toolsQuery, "query", "q", "", "Filter by name or description")
	toolsListCmd.Flags().StringVar(&toolsPin, "pin", "", "Move this tool (id or name) to the top")
	toolsListCmd.Flags().IntVar(&toolsLimit, "limit", 100, "Maximum number of tools to fetch")
	toolsListCmd.Flags().IntVar(&toolsSkip, "skip", 0, "Number of tools to skip")

	toolsSearchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
}
