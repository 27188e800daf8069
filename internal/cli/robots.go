package cmd

import (
	"fmt"

	"github.com/rohmanhakim/politebot/internal/robots"
	"github.com/rohmanhakim/politebot/pkg/fileutil"
	"github.com/spf13/cobra"
)

var (
	robotsPaths []string
	robotsAgent string
)

var robotsCmd = &cobra.Command{
	Use:   "robots <file>",
	Short: "Evaluate paths against a local robots.txt file",
	Long: `Parses a robots.txt file from disk and prints, for every --path, whether
the agent may fetch it and which line decided. Nothing is requested.`,
	Example: `  politebot robots ./robots.txt --path /private/a --path /public
  politebot robots ./robots.txt --agent googlebot --path /`,
	Args: cobra.ExactArgs(1),
	RunE: runRobots,
}

func init() {
	rootCmd.AddCommand(robotsCmd)

	robotsCmd.Flags().StringArrayVar(&robotsPaths, "path", []string{"/"}, "path (with optional query) to evaluate, can be repeated")
	robotsCmd.Flags().StringVar(&robotsAgent, "agent", "", "agent to evaluate for (defaults to --name)")
}

func resetRobotsFlags() {
	robotsPaths = []string{"/"}
	robotsAgent = ""
}

func runRobots(cmd *cobra.Command, args []string) error {
	content, fileErr := fileutil.ReadFileLimited(args[0], robots.MaxSize, true)
	if fileErr != nil {
		return fileErr
	}

	ruleSet, err := robots.Parse(string(content))
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", args[0], err)
	}

	agent := robotsAgent
	if agent == "" {
		agent = botName
	}

	out := cmd.OutOrStdout()
	for _, path := range robotsPaths {
		decision, err := ruleSet.Evaluate(path, agent)
		if err != nil {
			return fmt.Errorf("error evaluating %s: %w", path, err)
		}

		verdict := "allowed"
		if !decision.Allowed {
			verdict = "disallowed"
		}
		rule := "-"
		if decision.Line >= 0 {
			l := ruleSet.Lines()[decision.Line]
			rule = fmt.Sprintf("%s: %s", l.Key(), l.RawValue())
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", path, verdict, decision.Reason, rule); err != nil {
			return err
		}
	}

	if delay, ok := ruleSet.Delay(agent); ok {
		if _, err := fmt.Fprintf(out, "crawl-delay\t%s\n", delay); err != nil {
			return err
		}
	}
	return nil
}
