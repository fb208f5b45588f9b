package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/dirsync/internal/model"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Action  string // optional - filter to one provenance action
	Session string // optional - filter to one session
}

// TraceResult holds the provenance timeline.
type TraceResult struct {
	ItemID   string                  `json:"item_id,omitempty"`
	Timeline []model.ProvenanceEntry `json:"timeline"`
	Stats    TraceStats              `json:"stats"`
}

// TraceStats summarizes a timeline.
type TraceStats struct {
	Entries  int            `json:"entries"`
	Sessions int            `json:"sessions"`
	Actions  map[string]int `json:"actions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [item-id]",
		Short: "Show the provenance trail",
		Long: `Show the provenance entries recorded for one item, or for every
item when no id is given, in write order.

Each entry names the session that wrote it, so a researcher edit and
everything the consumers and workflows did in response share a session.

Examples:
  dirsync trace
  dirsync trace <item-id>
  dirsync trace <item-id> --action shadow
  dirsync trace --session <session-id> --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID := ""
			if len(args) == 1 {
				itemID = args[0]
			}
			return runTrace(opts, itemID, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Action, "action", "", "only entries with this action")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only entries written by this session")
	return cmd
}

func runTrace(opts *TraceOptions, itemID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if itemID != "" {
		if _, err := a.Catalog.Get(ctx, itemID); err != nil {
			// Deleted items keep their provenance.
			formatter.VerboseLog("item %s: %v", itemID, err)
		}
	}
	entries, err := a.Trace(ctx, itemID)
	if err != nil {
		return formatter.FailStore(err)
	}

	result := buildTrace(itemID, entries, opts.Action, opts.Session)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	writeTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

func buildTrace(itemID string, entries []model.ProvenanceEntry, action, sessionID string) TraceResult {
	result := TraceResult{
		ItemID:   itemID,
		Timeline: []model.ProvenanceEntry{},
		Stats:    TraceStats{Actions: map[string]int{}},
	}
	sessions := map[string]bool{}
	for _, e := range entries {
		if action != "" && e.Action != action {
			continue
		}
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		result.Timeline = append(result.Timeline, e)
		result.Stats.Actions[e.Action]++
		sessions[e.SessionID] = true
	}
	result.Stats.Entries = len(result.Timeline)
	result.Stats.Sessions = len(sessions)
	return result
}

func writeTraceText(w io.Writer, result TraceResult, verbose bool) {
	if result.ItemID != "" {
		fmt.Fprintf(w, "Trace for item: %s\n", result.ItemID)
	} else {
		fmt.Fprintln(w, "Trace for all items")
	}
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
		return
	}

	fmt.Fprintln(w, "\nTimeline:")
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %-10s %s  %s\n", e.Seq, e.Action, e.ItemID, e.Message)
		if verbose {
			fmt.Fprintf(w, "       session: %s\n", truncateID(e.SessionID))
		}
	}

	fmt.Fprintln(w, "\nStats:")
	fmt.Fprintf(w, "  Entries:  %d\n", result.Stats.Entries)
	fmt.Fprintf(w, "  Sessions: %d\n", result.Stats.Sessions)
	actions := make([]string, 0, len(result.Stats.Actions))
	for a := range result.Stats.Actions {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-10s %d\n", a+":", result.Stats.Actions[a])
	}
}

// truncateID shortens long ids for display.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
