package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/api"
)

var forgeForce bool

// forgeCmd generates a tool from API documentation
var forgeCmd = &cobra.Command{
	Use:   "forge <url>",
	Short: "Forge a tool from API documentation at a URL",
	Long: `Crawl the documentation at <url> and generate a tool for it.

The forge reports what it found (endpoints, auth parameters, base URL) and
prints the generated source. Use --force to regenerate a tool that already
exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := strings.TrimSpace(args[0])
		if u, err := url.Parse(source); err != nil || u.Scheme == "" || u.Host == "" {
			return &internal.ParseError{Source: "forge", Key: source, Err: fmt.Errorf("not an absolute URL")}
		}

		var res *api.ForgeResponse
		err := internal.ShowProgress(cmd.Context(), "Forging tool from "+source, func() error {
			var err error
			res, err = newClient().ForgeGenerate(cmd.Context(), api.ForgeRequest{SourceURL: source, ForceRegenerate: forgeForce})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to forge tool: %w", err)
		}

		out := cmd.OutOrStdout()
		if !res.Success {
			internal.PrintWarning(out, "Forge reported no success")
		}
		_, _ = fmt.Fprintln(out, headerStyle.Render("⚒ "+res.ToolID))

		docs := res.Documentation
		_, _ = fmt.Fprintf(out, "%s %d endpoint(s) found\n", countStyle.Render("•"), docs.EndpointsFound)
		if docs.BaseURL != "" {
			_, _ = fmt.Fprintf(out, "%s base URL %s\n", countStyle.Render("•"), linkStyle.Render(docs.BaseURL))
		}
		if len(docs.AuthParams) > 0 {
			_, _ = fmt.Fprintf(out, "%s auth: %s\n", countStyle.Render("•"), strings.Join(docs.AuthParams, ", "))
		}
		md := res.Metadata
		_, _ = fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("%d page(s) crawled, %d token(s), %.0fms", md.FirecrawlPagesCrawled, md.TokensUsed, md.GenerationTimeMS)))

		if code := res.GeneratedCode; strings.TrimSpace(code.TypeScript) != "" {
			_, _ = fmt.Fprintln(out)
			lang := code.Language
			if lang == "" {
				lang = "typescript"
			}
			_, _ = fmt.Fprintln(out, titleStyle.Render("Generated "+lang+" "+code.Framework))
			printCode(out, code.TypeScript, lang)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgeCmd)
	forgeCmd.Flags().BoolVar(&forgeForce, "force", false, "Regenerate even if the tool already exists")
}
