// Command netchan is the CLI entry point.
//
// netchan runs either end of a sequenced datagram channel: a server that
// replicates a small simulated world to every client with delta compressed
// frames, or a client that connects to one. Both run over UDP, or over
// WebRTC DataChannels after a WebSocket signaling exchange.
package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netchan/internal/config"
	"github.com/1ureka/netchan/internal/util"
)

var version = "dev"

// rootOptions are the flags every subcommand shares.
type rootOptions struct {
	configPath string
	debug      bool
	transport  string
	packetLen  int
	frameRate  int
	timeout    string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "netchan",
		Short: "Sequenced datagram channel with delta compressed snapshots",
		Long: `netchan multiplexes a reliable and an unreliable stream over a lossy
datagram socket, and uses it to replicate a simulated world.

  netchan serve              run a server on UDP :27910
  netchan connect            connect to 127.0.0.1:27910
  netchan ban add 10.0.0.5   ban a host from the server's ban list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				util.EnableDebug()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&opts.transport, "transport", "", "Datagram transport: udp or webrtc")
	pf.IntVar(&opts.packetLen, "packet-len", 0, "Payload budget per datagram")
	pf.IntVar(&opts.frameRate, "rate", 0, "Frames (server) or commands (client) per second")
	pf.StringVar(&opts.timeout, "timeout", "", "Drop the peer after this much silence, e.g. 30s")

	rootCmd.AddCommand(
		serveCmd(opts),
		connectCmd(opts),
		banCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies the shared flags
// that were set on the command line.
func (o *rootOptions) loadConfig(cmd *cobra.Command, role config.Role) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	cfg.Role = role

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = config.Transport(o.transport)
	}
	if flags.Changed("packet-len") {
		cfg.MaxPacketLen = o.packetLen
	}
	if flags.Changed("rate") {
		cfg.FrameRate = o.frameRate
	}
	if flags.Changed("timeout") {
		d, err := parseDuration(o.timeout)
		if err != nil {
			return cfg, err
		}
		cfg.Timeout = d
	}
	if o.debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		util.EnableDebug()
	}
	return cfg, nil
}

func printBanner(title string) {
	pterm.Info.Println(fmt.Sprintf("Netchan — v%s", version))
	pterm.DefaultSection.Println(title)
}
