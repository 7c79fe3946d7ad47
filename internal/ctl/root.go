package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"articled/pkg/types"
)

// Options carries the connection flags shared by all subcommands.
type Options struct {
	ServerURL string
	Timeout   time.Duration
}

// BuildRootCmd constructs the articlectl command tree.
func BuildRootCmd(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "articlectl",
		Short:         "Control an articled server from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ServerURL, "server", opts.ServerURL, "articled base URL")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", opts.Timeout, "request timeout")

	client := func() *Client { return NewClient(strings.TrimRight(opts.ServerURL, "/"), opts.Timeout) }

	models := &cobra.Command{Use: "models", Short: "List available models", RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := client().Models(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range infos {
			state := ""
			if m.Loaded {
				state = "  [loaded]"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  (%s, %s)%s\n", m.Name, m.BackingID, m.Parameters, state)
		}
		return nil
	}}

	var genModel string
	var genTokens int
	generate := &cobra.Command{
		Use:     "generate <prompt>",
		Short:   "Generate an article from a prompt",
		Example: "  articlectl generate \"Renewable energy\" --model Bloom-560M --max-new-tokens 200",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Generate(cmd.Context(), types.GenerateRequest{
				Model:        genModel,
				Prompt:       strings.Join(args, " "),
				MaxNewTokens: genTokens,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Article)
			if resp.Failed {
				os.Exit(1)
			}
			return nil
		},
	}
	generate.Flags().StringVar(&genModel, "model", "", "model name (server default when empty)")
	generate.Flags().IntVar(&genTokens, "max-new-tokens", 0, "maximum new tokens (server default when 0)")

	history := &cobra.Command{Use: "history", Short: "Show logged interactions", RunE: func(cmd *cobra.Command, args []string) error {
		records, err := client().History(cmd.Context())
		if err != nil {
			return err
		}
		for _, rec := range records {
			status := ""
			if rec.Failed {
				status = "  [failed]"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s%s\n  prompt: %s\n  response: %s\n",
				rec.Timestamp, rec.Model, status, rec.Prompt, truncateForDisplay(rec.Response, 200))
		}
		return nil
	}}

	var exportOut string
	export := &cobra.Command{
		Use:       "export csv|json",
		Short:     "Export the interaction log",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"csv", "json"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format := args[0]
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown export format: %s", format)
			}
			if exportOut == "" {
				_, err := client().Export(cmd.Context(), format, cmd.OutOrStdout())
				return err
			}
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			name, err := client().Export(cmd.Context(), format, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (server name %s)\n", exportOut, name)
			return nil
		},
	}
	export.Flags().StringVarP(&exportOut, "output", "o", "", "write to file instead of stdout")

	clearHistory := &cobra.Command{Use: "clear-history", Short: "Delete the interaction log", RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().ClearHistory(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
		return nil
	}}

	clearCache := &cobra.Command{Use: "clear-cache", Short: "Unload all cached models on the server", RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().ClearCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "model cache cleared")
		return nil
	}}

	stats := &cobra.Command{Use: "stats", Short: "Show interaction statistics", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total interactions: %d\n", st.TotalInteractions)
		fmt.Fprintf(out, "unique prompts:     %d\n", st.UniquePrompts)
		fmt.Fprintf(out, "avg response chars: %.1f\n", st.AvgResponseChars)
		if st.MostUsedModel != "" {
			fmt.Fprintf(out, "most used model:    %s\n", st.MostUsedModel)
		}
		for model, n := range st.PerModel {
			fmt.Fprintf(out, "  %s: %d\n", model, n)
		}
		return nil
	}}

	status := &cobra.Command{Use: "status", Short: "Show server status", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state:       %s\n", st.State)
		fmt.Fprintf(out, "uptime:      %s\n", (time.Duration(st.UptimeSeconds) * time.Second).String())
		fmt.Fprintf(out, "loads total: %d\n", st.LoadsTotal)
		if st.LastError != "" {
			fmt.Fprintf(out, "last error:  %s\n", st.LastError)
		}
		for _, inst := range st.Instances {
			fmt.Fprintf(out, "  %s  state=%s inflight=%d queued=%d\n", inst.Model, inst.State, inst.Inflight, inst.QueueLen)
		}
		return nil
	}}

	root.AddCommand(models, generate, history, export, clearHistory, clearCache, stats, status)
	return root
}

func truncateForDisplay(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// filenameFromDisposition pulls filename="..." out of a Content-Disposition
// header. Empty when absent.
func filenameFromDisposition(h string) string {
	const marker = `filename="`
	i := strings.Index(h, marker)
	if i < 0 {
		return ""
	}
	rest := h[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	return rest[:j]
}
