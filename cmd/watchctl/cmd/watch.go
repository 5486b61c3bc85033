package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/api/stream"
)

var watchAlertID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream alert history events as they happen",
	Long: `Open the server's event stream and print each alert lifecycle event
(triggered, suppressed, escalated, resolved) until interrupted.

Example:
  watchctl watch --alert 9b2f...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return streamEvents(ctx, serverURL, token, watchAlertID, cmd.OutOrStdout())
	},
}

// streamURL converts the server base URL to the websocket stream endpoint.
func streamURL(base, alertID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/stream"
	if alertID != "" {
		u.RawQuery = url.Values{"alert_id": {alertID}}.Encode()
	}
	return u.String(), nil
}

func streamEvents(ctx context.Context, base, tok, alertID string, w io.Writer) error {
	target, err := streamURL(base, alertID)
	if err != nil {
		return err
	}
	header := http.Header{}
	if tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	PrintVerbose("connecting to %s", target)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect stream: %s", resp.Status)
		}
		return fmt.Errorf("connect stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		var msg stream.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("stream closed by server")
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if GetOutput() == "json" {
			if err := printJSON(w, msg); err != nil {
				return err
			}
			continue
		}
		e := msg.Data
		fmt.Fprintf(w, "%s  %-10s  %s  %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Status, e.AlertID, formatDetails(e.Details))
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchAlertID, "alert", "", "only events for this alert ID")
	rootCmd.AddCommand(watchCmd)
}
