package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type chatOptions struct {
	URL    string
	Self   string
	Peer   string
	Origin string
}

func chatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:          "chat",
		SilenceUsage: true,
		Short:        "connect to a relay and exchange lines with a peer",
		Long:         `chat opens /ws/{self}/{peer} on a relay server, sends each line read from stdin as a text frame and prints every frame it receives.`,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts, os.Stdin, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.URL, "url", "u", "ws://localhost:8080", "relay server base URL")
	fs.StringVarP(&opts.Self, "self", "s", "", "id to register as")
	fs.StringVarP(&opts.Peer, "peer", "p", "", "id to send messages to")
	fs.StringVar(&opts.Origin, "origin", "", "Origin header to send, if any")
	_ = cmd.MarkFlagRequired("self")
	_ = cmd.MarkFlagRequired("peer")
	return cmd
}

// chatURL joins base with /ws/{self}/{peer}, escaping both ids. http and
// https bases are mapped to ws and wss.
func chatURL(base, self, peer string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", base)
	}

	prefix := strings.TrimRight(u.Path, "/")
	u.Path = prefix + "/ws/" + self + "/" + peer
	u.RawPath = prefix + "/ws/" + url.PathEscape(self) + "/" + url.PathEscape(peer)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func runChat(ctx context.Context, opts chatOptions, in io.Reader, out io.Writer) error {
	target, err := chatURL(opts.URL, opts.Self, opts.Peer)
	if err != nil {
		return err
	}

	header := http.Header{}
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", target, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closing atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if closing.Load() || gctx.Err() != nil ||
					websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			if _, err := fmt.Fprintln(out, string(data)); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		lines := scanLines(gctx, in)
		for {
			select {
			case <-gctx.Done():
				closeChat(conn, &closing)
				return nil
			case line, ok := <-lines:
				if !ok {
					closeChat(conn, &closing)
					return nil
				}
				if line == "" {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
					if closing.Load() || errors.Is(err, websocket.ErrCloseSent) {
						return nil
					}
					return fmt.Errorf("write: %w", err)
				}
			}
		}
	})

	return g.Wait()
}

// scanLines feeds lines from r into the returned channel and closes it at
// EOF. The goroutine may outlive ctx while r blocks.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// closeChat sends a normal close frame once and bounds the wait for the
// server's reply.
func closeChat(conn *websocket.Conn, closing *atomic.Bool) {
	if !closing.CompareAndSwap(false, true) {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.SetReadDeadline(deadline)
}
