package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/1ureka/netchan/internal/client"
	"github.com/1ureka/netchan/internal/config"
	"github.com/1ureka/netchan/internal/netchan"
	"github.com/1ureka/netchan/internal/signaling"
	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
	"github.com/1ureka/netchan/internal/world"
)

func connectCmd(opts *rootOptions) *cobra.Command {
	var (
		serverAddr string
		qport      uint16
		signalURL  string
		pin        string
	)

	cmd := &cobra.Command{
		Use:   "connect [server]",
		Short: "Connect to a server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, config.RoleClient)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if len(args) == 1 {
				cfg.Server = args[0]
			} else if flags.Changed("server") {
				cfg.Server = serverAddr
			}
			if flags.Changed("qport") {
				cfg.QPort = qport
			}
			if flags.Changed("signal") {
				cfg.SignalAddr = signalURL
			}
			if flags.Changed("pin") {
				cfg.SignalPIN = pin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runClient(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&serverAddr, "server", "s", "", "Server UDP address")
	f.Uint16Var(&qport, "qport", 0, "Client qport (random when zero)")
	f.StringVar(&signalURL, "signal", "", "Signaling URL for the webrtc transport")
	f.StringVar(&pin, "pin", "", "Signaling PIN")

	return cmd
}

func runClient(ctx context.Context, cfg config.Config) error {
	printBanner("Client")

	inbox := transport.NewInbox(transport.InboxSize)

	// The socket outlives ctx so the client can still send its disconnect.
	sockCtx, closeSock := context.WithCancel(context.Background())
	defer closeSock()

	var (
		sock netchan.Socket
		addr net.Addr
	)
	switch cfg.Transport {
	case config.TransportWebRTC:
		wsURL, err := normalizeWSURL(cfg.SignalAddr, cfg.SignalPIN)
		if err != nil {
			return err
		}
		util.LogInfo("Signaling through %s", wsURL)

		peer, err := signaling.Dial(ctx, wsURL, inbox)
		if err != nil {
			return err
		}
		defer peer.Close()
		sock, addr = peer, signaling.ServerAddr

	default:
		raddr, err := net.ResolveUDPAddr("udp", cfg.Server)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", cfg.Server, err)
		}
		udp, err := transport.ListenUDP(":0", inbox)
		if err != nil {
			return err
		}
		defer udp.Close()
		go udp.Run(sockCtx)
		sock, addr = udp, raddr
	}

	c := client.New(&cfg, sock, inbox, addr)
	util.StartStatsReporter(ctx, 10*time.Second)
	go report(ctx, c)

	if err := c.Run(ctx); err != nil {
		return err
	}
	util.LogInfo("Disconnected")
	return nil
}

// report logs what the client sees every few seconds.
func report(ctx context.Context, c *client.Client) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.State() != client.Active {
			util.LogInfo("State: %s", c.State())
			continue
		}
		ps := c.Player()
		id, _ := c.Ambients()
		shots, _ := c.Shots()
		_, _, dropped := c.Stats()
		util.LogInfo("%s | frame %d | %d entities | ambient %d | shots %d | pos %.0f %.0f %.0f | dropped %d",
			c.ConfigString(world.CSMap), c.Frame(), len(c.Entities()), id, shots,
			ps.PMove.Origin[0], ps.PMove.Origin[1], ps.PMove.Origin[2], dropped)
	}
}

// normalizeWSURL validates a signaling URL and points it at /ws with the
// PIN attached.
func normalizeWSURL(raw, pin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	if pin != "" {
		q := u.Query()
		q.Set("pin", pin)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
