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

var ThreadsCmd = &cobra.Command{
	Use:     "threads",
	Aliases: []string{"t"},
	Short:   "Manage conversation threads",
	Long:    `List, inspect, and delete conversation threads on the Execution Service.`,
}

// defaultThreadParams mirror the thread list surface: newest first.
var defaultThreadParams = graphclient.SearchParams{
	Limit:     50,
	SortBy:    "updated_at",
	SortOrder: "desc",
}

func threadsCacheKey(params graphclient.SearchParams) string {
	return "threads:search:" + params.Key()
}

// fetchThreads lists threads through the query cache, so repeated
// identical queries inside the window don't re-issue network calls.
func fetchThreads(ctx context.Context, params graphclient.SearchParams) ([]domain.ThreadInfo, error) {
	c := newClient()
	value, err := queryCache().Do(ctx, threadsCacheKey(params), func(ctx context.Context) (any, error) {
		return c.SearchThreads(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	threads, _ := value.([]domain.ThreadInfo)
	return threads, nil
}

var listThreadsCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List threads",
	Run: func(cmd *cobra.Command, args []string) {
		threads, err := fetchThreads(cmd.Context(), defaultThreadParams)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tAssistant\tTitle\tUpdated")
		for _, t := range threads {
			title := t.Title
			if len(title) > 48 {
				title = title[:45] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				t.ThreadID, t.AssistantID, title, t.UpdatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
	},
}

var getThreadCmd = &cobra.Command{
	Use:     "get [id]",
	Aliases: []string{"g"},
	Short:   "Show a thread's conversation",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		state, err := c.FetchHistory(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		for _, m := range state.Messages {
			if !m.Renderable() {
				continue
			}
			label := "agent"
			if m.Role == domain.RoleHuman {
				label = "you"
			}
			if text := m.Text(); text != "" {
				fmt.Printf("[%s] %s\n", label, text)
			}
			for _, call := range m.ToolCalls {
				fmt.Printf("[tool] %s\n", call.Name)
			}
		}
	},
}

var deleteThreadCmd = &cobra.Command{
	Use:     "delete [id]",
	Aliases: []string{"d", "rm"},
	Short:   "Delete a thread",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		threadID := args[0]
		c := newClient()
		if err := c.DeleteThread(cmd.Context(), threadID); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		// Patch the cached list in place instead of refetching.
		queryCache().Patch(threadsCacheKey(defaultThreadParams), func(value any) any {
			threads, ok := value.([]domain.ThreadInfo)
			if !ok {
				return value
			}
			out := threads[:0]
			for _, t := range threads {
				if t.ThreadID != threadID {
					out = append(out, t)
				}
			}
			return out
		})
		fmt.Printf("Deleted thread %s\n", threadID)
	},
}

func init() {
	ThreadsCmd.AddCommand(listThreadsCmd)
	ThreadsCmd.AddCommand(getThreadCmd)
	ThreadsCmd.AddCommand(deleteThreadCmd)
}
