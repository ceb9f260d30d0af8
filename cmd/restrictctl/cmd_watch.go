package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/ws"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// newWatchCmd creates the "watch" command.
func newWatchCmd(c *cli) *cobra.Command {
	var (
		uid   int
		count int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream level changes as they happen",
		Long:  "Stream realized level changes until interrupted, or until --count changes were seen.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := streamURL(c.server)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("uid") {
				q := target.Query()
				q.Set("uid", strconv.Itoa(uid))
				target.RawQuery = q.Encode()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
			conn, resp, err := dialer.DialContext(ctx, target.String(), nil)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("connect %s: %s", target.Redacted(), resp.Status)
				}
				return fmt.Errorf("connect %s: %w", target.Redacted(), err)
			}
			defer conn.Close()

			// unblock ReadMessage on cancellation
			stop := context.AfterFunc(ctx, func() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
			})
			defer stop()

			out := cmd.OutOrStdout()
			seen := 0
			for count <= 0 || seen < count {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					return fmt.Errorf("read stream: %w", err)
				}
				var msg ws.Message
				if err := sonic.Unmarshal(data, &msg); err != nil {
					return fmt.Errorf("decode stream message: %w", err)
				}
				switch msg.Type {
				case ws.TypeLevelChanged:
					if msg.Change == nil {
						continue
					}
					seen++
					if c.json {
						fmt.Fprintln(out, string(data))
						continue
					}
					ch := msg.Change
					fmt.Fprintf(out, "%s uid=%d package=%s %s -> %s (%s)\n",
						ch.At.Format(time.RFC3339), ch.UID, ch.Package, ch.Previous, ch.Level, ch.Reason)
				case ws.TypeError:
					return errors.New(msg.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&uid, "uid", 0, "only changes of this uid")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many changes")
	return cmd
}

// streamURL maps the daemon base URL onto its websocket endpoint
func streamURL(server string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path += "/v1/stream"
	return u, nil
}
