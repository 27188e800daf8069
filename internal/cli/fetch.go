package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rohmanhakim/politebot/internal/fetcher"
	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/internal/render"
	"github.com/rohmanhakim/politebot/internal/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	asMarkdown       bool
	asLinks          bool
	asStream         bool
	acceptHTTPErrors bool
	noCache          bool
	headerLines      []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>...",
	Short: "Politely request one or more URLs and print the responses",
	Long: `Requests each URL in order. Requests to the same origin are spaced by the
robots.txt crawl-delay or the minimum delay, whichever is larger. Disallowed
URLs are reported and skipped.`,
	Example: `  # Print a page
  politebot fetch https://example.com/

  # Print a page as Markdown
  politebot fetch --markdown https://example.com/docs/

  # List the links of two pages on the same site
  politebot fetch --links https://example.com/a https://example.com/b`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().BoolVar(&asMarkdown, "markdown", false, "convert HTML responses to Markdown")
	fetchCmd.Flags().BoolVar(&asLinks, "links", false, "print the links of HTML responses, one per line")
	fetchCmd.Flags().BoolVar(&asStream, "stream", false, "copy the response body to stdout as it arrives")
	fetchCmd.Flags().BoolVar(&acceptHTTPErrors, "accept-http-errors", false, "print 4xx/5xx responses instead of failing")
	fetchCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
	fetchCmd.Flags().StringArrayVarP(&headerLines, "header", "H", []string{}, "extra request header (e.g., -H \"Accept: text/html\")")
}

func resetFetchFlags() {
	asMarkdown = false
	asLinks = false
	asStream = false
	acceptHTTPErrors = false
	noCache = false
	headerLines = []string{}
}

func runFetch(cmd *cobra.Command, args []string) error {
	if asStream && (asMarkdown || asLinks) {
		return errors.New("--stream cannot be combined with --markdown or --links")
	}
	if asMarkdown && asLinks {
		return errors.New("--markdown and --links are mutually exclusive")
	}

	headers, err := parseHeaders(headerLines)
	if err != nil {
		return err
	}

	cfg, err := InitConfigWithError()
	if err != nil {
		return err
	}

	recorder := metadata.NewRecorder(log.Logger)
	bot, err := scheduler.NewScheduler(cfg, recorder, log.Logger)
	if err != nil {
		return err
	}
	renderer := render.NewRenderer(recorder)

	opts := scheduler.RequestOptions{
		Headers:          headers,
		AcceptHTTPErrors: acceptHTTPErrors,
		DisableCache:     noCache,
	}
	if asStream {
		opts.Mode = fetcher.ModeStream
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, rawURL := range args {
		result, err := bot.Request(cmd.Context(), rawURL, opts)
		if err != nil {
			var botErr *scheduler.BotError
			if errors.As(err, &botErr) && botErr.Cause == scheduler.CauseCanceled {
				return err
			}
			log.Error().Err(err).Str("url", rawURL).Msg("request failed")
			failed++
			continue
		}

		if err := writeResult(out, renderer, result); err != nil {
			log.Error().Err(err).Str("url", rawURL).Msg("cannot print response")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(args))
	}
	return nil
}

func writeResult(out io.Writer, renderer *render.Renderer, result fetcher.FetchResult) error {
	if stream := result.Stream(); stream != nil {
		defer stream.Close()
		_, err := io.Copy(out, stream)
		return err
	}

	switch {
	case asMarkdown:
		markdown, renderErr := renderer.Markdown(result.URL(), result.Body())
		if renderErr != nil {
			return renderErr
		}
		_, err := fmt.Fprintln(out, string(markdown))
		return err

	case asLinks:
		links, renderErr := renderer.Links(result.URL(), result.Body())
		if renderErr != nil {
			return renderErr
		}
		for _, link := range links {
			resolved := link.Resolved()
			if _, err := fmt.Fprintln(out, resolved.String()); err != nil {
				return err
			}
		}
		return nil

	default:
		_, err := out.Write(result.Body())
		return err
	}
}

// parseHeaders reads "Key: Value" lines into a header.
func parseHeaders(lines []string) (http.Header, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	headers := http.Header{}
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Key: Value\"", line)
		}
		headers.Add(key, strings.TrimSpace(value))
	}
	return headers, nil
}
