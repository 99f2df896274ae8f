package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/replybot/internal/api"
	"github.com/kalambet/replybot/internal/config"
	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/retrieval"
	"github.com/kalambet/replybot/internal/schedule"
	"github.com/kalambet/replybot/internal/storage"
)

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// --- reply ---

var replyCmd = &cobra.Command{
	Use:   "reply <text>",
	Short: "Ask the running server for a reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		explain, _ := cmd.Flags().GetBool("explain")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmdContext(cmd), "/v1/reply", api.ReplyRequest{
			Text:    strings.Join(args, " "),
			Sender:  "cli",
			Explain: explain,
		})
		if err != nil {
			return err
		}

		var res retrieval.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printResult(os.Stdout, res, explain)
		return nil
	},
}

func init() {
	replyCmd.Flags().Bool("explain", false, "show how the reply was chosen")
}

func printResult(w io.Writer, res retrieval.Result, explain bool) {
	fmt.Fprintln(w, res.Reply)
	if !explain {
		return
	}
	fmt.Fprintf(w, "\n%s %s (best score %.3f)\n", colorize(colorBold, "path:"), res.Path, res.BestScore)
	if len(res.Emoji) > 0 {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "emoji:"), strings.Join(res.Emoji, " "))
	}
	for i, c := range res.Candidates {
		fmt.Fprintf(w, "  %d. [%.3f] %s\n     → %s\n", i+1, c.Score, api.Truncate(c.Context, 80), api.Truncate(c.Response, 80))
	}
}

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message through the running server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmdContext(cmd), "/dispatch", api.DispatchRequest{
			Recipient: to,
			Text:      strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		var out api.DispatchResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Sent to %s", out.Recipient)
		return nil
	},
}

func init() {
	sendCmd.Flags().String("to", "", "recipient (default: schedule.recipient)")
}

// --- corpus ---

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect the transcript corpus offline",
}

var corpusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Build the corpus and show its size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		c, err := loadCorpus(cmdContext(cmd), cfg)
		if err != nil {
			return err
		}
		ix, err := fitIndex(c, cfg)
		if err != nil {
			return err
		}

		st := c.Stats()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tRECORDS\tPAIRS")
		for _, s := range st.Sources {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Name, s.Records, s.Pairs)
		}
		tw.Flush()

		is := ix.Stats()
		printStatus("Records", "%d", st.Records)
		printStatus("Pairs", "%d (window %d)", st.Pairs, cfg.Corpus.Window)
		printStatus("Message pool", "%d", st.PoolSize)
		printStatus("Vocabulary", "%d terms", is.Vocabulary)
		printStatus("Ranking", "top %d, threshold %.2f", is.TopK, is.Threshold)
		return nil
	},
}

var corpusQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a message from a locally built index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		explain, _ := cmd.Flags().GetBool("explain")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		c, err := loadCorpus(cmdContext(cmd), cfg)
		if err != nil {
			return err
		}
		ix, err := fitIndex(c, cfg)
		if err != nil {
			return err
		}

		printResult(os.Stdout, ix.Explain(strings.Join(args, " ")), explain)
		return nil
	},
}

func init() {
	corpusQueryCmd.Flags().Bool("explain", false, "show how the reply was chosen")
	corpusCmd.AddCommand(corpusStatsCmd)
	corpusCmd.AddCommand(corpusQueryCmd)
}

// --- schedule ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect scheduled messages",
}

var scheduleCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the schedule and show when each trigger fires next",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		// Pool triggers need the corpus; without one they fail validation.
		var pool schedule.Picker
		if len(cfg.Corpus.Patterns()) > 0 {
			c, err := loadCorpus(cmdContext(cmd), cfg)
			if err != nil {
				return err
			}
			pool = c.Pool
		}

		plan, err := buildSchedule(cfg, pool)
		if err != nil {
			return err
		}
		if len(plan.Triggers) == 0 {
			printWarning("No triggers: set schedule.file, or schedule.recipient for the defaults")
			return nil
		}

		s, err := schedule.New(plan.Triggers, dispatch.LogSender{}, schedule.Options{
			Location:  plan.Location,
			Recipient: plan.Recipient,
		})
		if err != nil {
			return err
		}
		printScheduleCheck(os.Stdout, plan, s)
		return nil
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleCheckCmd)
}

func printScheduleCheck(w io.Writer, plan schedulePlan, s *schedule.Scheduler) {
	triggers, next := s.Triggers(), s.Next()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIGGER\tTIMING\tNEXT\tRECIPIENT")
	for i, u := range next {
		t := triggers[i]
		at := u.At.Format("2006-01-02 15:04 MST")
		if u.Random {
			at += " (sample)"
		}
		recipient := t.Recipient
		if recipient == "" {
			recipient = plan.Recipient
		}
		if recipient == "" {
			recipient = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Name, t.Timing, at, recipient)
	}
	tw.Flush()
	printSuccess("%d trigger(s) from %s valid", len(triggers), plan.Source)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Show answered messages",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmdContext(cmd), fmt.Sprintf("/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []storage.Interaction
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			fmt.Printf("%s  %s  %-10s %-6s %s → %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt.Format("2006-01-02 15:04:05"),
				ix.Path,
				ix.Channel,
				api.Truncate(ix.Query, 60),
				api.Truncate(ix.Reply, 60),
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmdContext(cmd), "/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var interaction storage.Interaction
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}
		return printJSON(os.Stdout, interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
}

// --- dispatches ---

var dispatchesCmd = &cobra.Command{
	Use:   "dispatches",
	Short: "Show sent and failed outbound messages",
}

var dispatchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent dispatches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		if status != "" {
			q.Set("status", status)
		}
		resp, err := client.get(cmdContext(cmd), "/dispatches?"+q.Encode())
		if err != nil {
			return err
		}

		var dispatches []storage.Dispatch
		if err := decodeJSON(resp, &dispatches); err != nil {
			return err
		}

		if len(dispatches) == 0 {
			fmt.Println("No dispatches found.")
			return nil
		}

		for _, d := range dispatches {
			st := colorize(colorGreen, d.Status)
			if d.Status != "sent" {
				st = colorize(colorRed, d.Status)
			}
			line := fmt.Sprintf("%s  %s  %s  %-18s %s  %s",
				colorize(colorCyan, shortID(d.ID)),
				d.CreatedAt.Format("2006-01-02 15:04:05"),
				st,
				d.Origin,
				d.Recipient,
				api.Truncate(d.Text, 60),
			)
			if d.Error != "" {
				line += "  (" + d.Error + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	dispatchesListCmd.Flags().Int("limit", 20, "maximum number of dispatches to list")
	dispatchesListCmd.Flags().String("status", "", "only show sent or failed dispatches")
	dispatchesCmd.AddCommand(dispatchesListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
