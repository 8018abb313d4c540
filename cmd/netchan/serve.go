package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netchan/internal/config"
	"github.com/1ureka/netchan/internal/metrics"
	"github.com/1ureka/netchan/internal/server"
	"github.com/1ureka/netchan/internal/signaling"
	"github.com/1ureka/netchan/internal/status"
	"github.com/1ureka/netchan/internal/storage"
	"github.com/1ureka/netchan/internal/transport"
	"github.com/1ureka/netchan/internal/util"
	"github.com/1ureka/netchan/internal/world"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		listen      string
		maxClients  int
		metricsAddr string
		banDB       string
		signalAddr  string
		pin         string
		seed        uint64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, config.RoleServer)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("max-clients") {
				cfg.MaxClients = maxClients
			}
			if flags.Changed("metrics") {
				cfg.MetricsAddr = metricsAddr
			}
			if flags.Changed("ban-db") {
				cfg.BanDB = banDB
			}
			if flags.Changed("signal") {
				cfg.SignalAddr = signalAddr
			}
			if flags.Changed("pin") {
				cfg.SignalPIN = pin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runServer(ctx, cfg, seed)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&listen, "listen", "l", "", "UDP listen address")
	f.IntVar(&maxClients, "max-clients", 0, "Client slots")
	f.StringVar(&metricsAddr, "metrics", "", "HTTP address for /status and /metrics")
	f.StringVar(&banDB, "ban-db", "", "SQLite ban list")
	f.StringVar(&signalAddr, "signal", "", "WebRTC signaling listen address")
	f.StringVar(&pin, "pin", "", "Signaling PIN (random when empty)")
	f.Uint64Var(&seed, "seed", 1, "World seed")

	return cmd
}

func runServer(ctx context.Context, cfg config.Config, seed uint64) error {
	printBanner("Server")

	inbox := transport.NewInbox(transport.InboxSize)
	udp, err := transport.ListenUDP(cfg.Listen, inbox)
	if err != nil {
		return err
	}
	defer udp.Close()
	util.LogInfo("UDP listening on %s", udp.LocalAddr())

	mux := transport.NewMux(udp)
	m := metrics.New()
	opts := []server.Option{
		server.WithObserver(m),
		server.WithWorld(world.New(seed)),
	}

	if cfg.BanDB != "" {
		bans, err := storage.OpenBanList(cfg.BanDB)
		if err != nil {
			return err
		}
		defer bans.Close()

		if n, err := bans.Prune(time.Now()); err != nil {
			util.LogWarning("prune ban list: %v", err)
		} else if n > 0 {
			util.LogInfo("Pruned %d expired bans", n)
		}
		opts = append(opts, server.WithBans(bans))
	}

	srv := server.New(&cfg, mux, inbox, opts...)

	var sig http.Handler
	if cfg.Transport == config.TransportWebRTC {
		pin := cfg.SignalPIN
		if pin == "" {
			pin = signaling.GeneratePIN(6)
		}
		sig = signaling.NewServer(ctx, pin, inbox, func(p *transport.Peer) {
			mux.AddPeer(p)
			util.LogPeer(p.Addr().String(), "DataChannel open, %d WebRTC peers", mux.Len())
		})

		pterm.DefaultBox.WithTitle("Signaling").Println(
			fmt.Sprintf("ws://%s/ws?pin=%s", cfg.SignalAddr, pin))
	}

	router := status.NewRouter(srv, prometheus.DefaultGatherer, sig)

	addrs := []string{}
	if cfg.MetricsAddr != "" {
		addrs = append(addrs, cfg.MetricsAddr)
	}
	if sig != nil && cfg.SignalAddr != cfg.MetricsAddr {
		addrs = append(addrs, cfg.SignalAddr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The socket outlives ctx so the server can still send disconnects.
	sockCtx, closeSock := context.WithCancel(context.Background())
	defer closeSock()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errOnce.Do(func() { runErr = err })
				cancel()
			}
		}()
	}

	run(func() error { return udp.Run(sockCtx) })
	for _, addr := range addrs {
		run(func() error { return status.Serve(ctx, addr, router) })
	}

	util.StartStatsReporter(ctx, 10*time.Second)

	err = srv.Run(ctx)
	closeSock()
	wg.Wait()
	if err != nil {
		return err
	}
	return runErr
}
