package cmd

import (
	"fmt"
	"io"

	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/internal/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Show whether a URL may be requested and how long the bot would wait",
	Long: `Fetches the origin's robots.txt and reports the decision for the URL
without requesting the URL itself.`,
	Example: `  politebot check https://example.com/private/page
  politebot check --name mybot https://example.com/`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := InitConfigWithError()
	if err != nil {
		return err
	}

	bot, err := scheduler.NewScheduler(cfg, metadata.NewRecorder(log.Logger), log.Logger)
	if err != nil {
		return err
	}

	decision, err := bot.Check(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printDecision(cmd.OutOrStdout(), bot.BotName(), decision)
}

func printDecision(out io.Writer, agent string, decision scheduler.Decision) error {
	verdict := "allowed"
	if !decision.Allowed {
		verdict = "disallowed"
	}
	crawlDelay := "none"
	if decision.CrawlDelay != nil {
		crawlDelay = decision.CrawlDelay.String()
	}

	_, err := fmt.Fprintf(out,
		"url:             %s\n"+
			"origin:          %s\n"+
			"agent:           %s\n"+
			"verdict:         %s (%s)\n"+
			"crawl-delay:     %s\n"+
			"effective delay: %s\n"+
			"wait:            %s\n"+
			"within maximum:  %t\n"+
			"robots digest:   %s\n",
		decision.URL,
		decision.Origin,
		agent,
		verdict, decision.Reason,
		crawlDelay,
		decision.EffectiveDelay,
		decision.Wait,
		decision.WithinMaximum,
		decision.RobotsDigest,
	)
	if err != nil {
		return err
	}
	for _, sitemap := range decision.Sitemaps {
		if _, err := fmt.Fprintf(out, "sitemap:         %s\n", sitemap); err != nil {
			return err
		}
	}
	return nil
}
