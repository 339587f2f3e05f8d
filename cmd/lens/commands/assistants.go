package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shaman2009/lang-lens/internal/domain"
	"github.com/shaman2009/lang-lens/internal/graphclient"
)

var AssistantsCmd = &cobra.Command{
	Use:     "assistants",
	Aliases: []string{"a"},
	Short:   "Manage assistants",
}

var listAssistantsCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List assistants",
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		params := graphclient.SearchParams{Limit: 50, SortBy: "name", SortOrder: "asc"}
		value, err := queryCache().Do(cmd.Context(), "assistants:search:"+params.Key(), func(ctx context.Context) (any, error) {
			return c.SearchAssistants(ctx, params)
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		assistants, _ := value.([]domain.Assistant)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tName\tGraph")
		for _, a := range assistants {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.AssistantID, a.Name, a.GraphID)
		}
		w.Flush()
	},
}

func init() {
	AssistantsCmd.AddCommand(listAssistantsCmd)
}
