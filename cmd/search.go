package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-scout/internal/model"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find LinkedIn profiles from a natural-language query",
	Long:  `Parses a query like "find me 5 software engineers in Toronto", discovers candidate profiles via Google, and resolves them through the cache.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.TrimSpace(strings.Join(args, " "))
		if len(query) < 2 || len(query) > 100 {
			return eris.New("query must be between 2 and 100 characters")
		}

		env, err := initEnv(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Searcher.Search(ctx, query)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		if len(result.Profiles) == 0 {
			fmt.Fprintln(os.Stderr, "No profiles found.")
			return nil
		}
		formatProfiles(os.Stdout, result.Profiles)
		fmt.Printf("\n%d profiles (%d cached, %d fetched)\n", result.Count, result.Cached, result.Fetched)
		return nil
	},
}

func formatProfiles(out io.Writer, profiles []model.Profile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "IDENTIFIER\tNAME\tHEADLINE\tLOCATION")
	for _, p := range profiles {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Identifier, p.Name, truncate(p.Headline, 40), p.Location)
	}
	_ = w.Flush()
}

// truncate shortens s to at most n characters, counting runes so multi-byte
// text is never cut mid-character.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}
