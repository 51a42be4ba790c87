package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/research-brief/internal/store"
)

var (
	briefsUserID string
	briefsTopic  string
	briefsLimit  int
	briefsJSON   bool
)

var briefsCmd = &cobra.Command{
	Use:   "briefs",
	Short: "List stored research briefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		briefs, err := st.ListBriefs(cmd.Context(), store.BriefFilter{
			UserID: briefsUserID,
			Topic:  briefsTopic,
			Limit:  briefsLimit,
		})
		if err != nil {
			return err
		}

		if briefsJSON {
			out, err := json.MarshalIndent(briefs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(briefs) == 0 {
			fmt.Println("no briefs found")
			return nil
		}
		for _, b := range briefs {
			fmt.Printf("%s  %-40s  depth=%d  confidence=%.1f  %s\n",
				b.CreatedAt.Format("2006-01-02 15:04"),
				truncate(b.Topic, 40),
				b.Depth,
				b.Brief.ConfidenceScore,
				b.RequestID,
			)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	briefsCmd.Flags().StringVar(&briefsUserID, "user", "", "filter by user id")
	briefsCmd.Flags().StringVar(&briefsTopic, "topic", "", "filter by topic substring")
	briefsCmd.Flags().IntVar(&briefsLimit, "limit", 20, "maximum briefs to list")
	briefsCmd.Flags().BoolVar(&briefsJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(briefsCmd)
}
