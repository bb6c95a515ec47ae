package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/tui-campuschat/internal/storage"
)

var (
	flagStatsLimit  int
	flagStatsDBPath string
	flagStatsClear  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the anonymous conversation log",
	Long: `Display recent conversations and totals from the conversation log.

Only anonymous metadata is recorded: the attribute of each side, how many
messages were exchanged, how long the conversation lasted and how it ended.
No identities and no message text are ever stored.

Examples:
  campuschat stats
  campuschat stats --limit 50
  campuschat stats --db ./chats.db
  campuschat stats --clear`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&flagStatsLimit, "limit", 20, "Number of recent conversations to show")
	statsCmd.Flags().StringVar(&flagStatsDBPath, "db", "", "Path to conversation log database (default from config)")
	statsCmd.Flags().BoolVar(&flagStatsClear, "clear", false, "Delete all recorded conversations")
}

func runStats(cmd *cobra.Command, _ []string) {
	dbPath := flagStatsDBPath
	if dbPath == "" {
		dbPath = loadConfig().Storage.DBPath
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening conversation log: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if flagStatsClear {
		if err := store.ClearConversations(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing conversation log: %v\n", err)
			store.Close()
			os.Exit(1)
		}
		fmt.Println("Conversation log cleared.")
		return
	}

	summary, err := store.Summarize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading conversation log: %v\n", err)
		store.Close()
		os.Exit(1)
	}

	if summary.Conversations == 0 {
		fmt.Println("No conversations recorded yet.")
		return
	}

	recent, err := store.RecentConversations(flagStatsLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading conversation log: %v\n", err)
		store.Close()
		os.Exit(1)
	}

	fmt.Printf("Recent conversations (%d of %d)\n\n", len(recent), summary.Conversations)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Started", "Duration", "Pair", "Messages", "Ended by"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, c := range recent {
		table.Append([]string{
			c.StartedAt.Local().Format("2006-01-02 15:04"),
			(time.Duration(c.DurationSecs) * time.Second).String(),
			c.AttributeA + " / " + c.AttributeB,
			strconv.Itoa(c.Messages),
			c.EndReason,
		})
	}
	table.Render()

	fmt.Println()
	fmt.Printf("Total conversations: %d\n", summary.Conversations)
	fmt.Printf("Total messages:      %d\n", summary.Messages)
	fmt.Printf("Average duration:    %s\n", summary.AvgDuration.Round(time.Second))

	reasons := lo.Keys(summary.ByReason)
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("  ended by %-10s %d\n", r+":", summary.ByReason[r])
	}
}
