// Command kusari sends one HTTP/1.1 request and prints the response.
//
//	kusari -X POST -H 'Content-Type: application/json' -d '{"a":1}' https://example.com/items
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Ikken9/kusari/application/http"
	"github.com/Ikken9/kusari/application/http/actor/client"
	"github.com/Ikken9/kusari/session/tls"
	"github.com/Ikken9/kusari/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kusari [flags] URL",
		Short: "Send an HTTP/1.1 request over TLS",
		Long: `kusari sends a single HTTP/1.1 request to an http or https URL and prints
the response body.

Flags can also be given as KUSARI_* environment variables (KUSARI_MAX_HEADER_BYTES),
in a .env file or in a config file. TLS secrets are appended to $SSLKEYLOGFILE when set.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	registerFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, cfg Config, rawURL string, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	dest, err := client.ParseURL(rawURL)
	if err != nil {
		return err
	}

	headers, err := parseHeaders(cfg.Headers)
	if err != nil {
		return err
	}

	var keyLog io.Writer
	if cfg.KeyLogFile != "" {
		f, err := os.OpenFile(cfg.KeyLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return errors.Wrap(err, "opening key log file")
		}
		defer f.Close()

		logger.Warn("writing TLS secrets", slog.String("file", cfg.KeyLogFile))
		keyLog = f
	}

	clk := clock.New()

	securer, err := tls.NewSecurer(clk, tls.Config{
		CAFile:           cfg.CAFile,
		KeyLogWriter:     keyLog,
		HandshakeTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "configuring TLS")
	}

	c := client.New(tcp.NewDialer(tcp.DialerOptions{}), securer, logger, clk, client.Options{
		Receive: client.ReceiveOptions{
			Decode: http.DecodeOptions{MaxHeaderBytes: cfg.MaxHeaderBytes},
		},
	})
	defer c.Close()

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = clk.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := c.Connect(connectCtx, dest); err != nil {
		return err
	}

	res, err := c.Send(ctx, http.Request{
		Method:  cfg.Method,
		Headers: headers,
		Body:    []byte(cfg.Data),
	})
	if res != nil {
		if werr := printResponse(stdout, res, cfg.Include); werr != nil {
			return errors.Wrap(werr, "printing response")
		}
	}

	return err
}

func parseHeaders(lines []string) (http.Headers, error) {
	headers := make(http.Headers, 0, len(lines))
	for _, line := range lines {
		field, err := http.ParseField([]byte(line))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid header %q", line)
		}
		headers = append(headers, field)
	}
	return headers, nil
}

func printResponse(w io.Writer, res *http.Response, includeHead bool) error {
	if includeHead {
		if _, err := fmt.Fprintf(w, "%s %03d %s\n", res.Version, res.StatusCode, res.ReasonPhrase); err != nil {
			return err
		}
		for _, f := range res.Headers {
			if _, err := fmt.Fprintf(w, "%s\n", f.Text()); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	_, err := w.Write(res.Body)
	return err
}
