package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netchan/internal/config"
	"github.com/1ureka/netchan/internal/storage"
	"github.com/1ureka/netchan/internal/util"
)

func banCmd(opts *rootOptions) *cobra.Command {
	var dbPath string

	open := func(cmd *cobra.Command) (*storage.BanList, error) {
		path := dbPath
		if path == "" {
			cfg, err := opts.loadConfig(cmd, config.RoleServer)
			if err != nil {
				return nil, err
			}
			path = cfg.BanDB
		}
		if path == "" {
			return nil, errors.New("no ban list: pass --db or set ban_db in the config")
		}
		return storage.OpenBanList(path)
	}

	cmd := &cobra.Command{
		Use:   "ban",
		Short: "Manage the server ban list",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite ban list (default: ban_db from the config)")

	var (
		reason string
		ttl    string
	)
	add := &cobra.Command{
		Use:   "add <ip>",
		Short: "Ban a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDuration(ttl)
			if err != nil {
				return err
			}
			l, err := open(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.Add(args[0], reason, d); err != nil {
				return err
			}
			util.LogSuccess("Banned %s", args[0])
			return nil
		},
	}
	add.Flags().StringVarP(&reason, "reason", "r", "banned by operator", "Reason shown to the client")
	add.Flags().StringVar(&ttl, "for", "", "Ban duration, e.g. 24h (default: forever)")

	remove := &cobra.Command{
		Use:   "remove <ip>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.Remove(args[0]); err != nil {
				return err
			}
			util.LogSuccess("Lifted ban on %s", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List bans",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			bans, err := l.List()
			if err != nil {
				return err
			}
			if len(bans) == 0 {
				util.LogInfo("No bans")
				return nil
			}

			now := time.Now()
			rows := pterm.TableData{{"Address", "Reason", "Created", "Expires", "Active"}}
			for _, b := range bans {
				expires := "never"
				if !b.Expires.IsZero() {
					expires = b.Expires.Format(time.DateTime)
				}
				rows = append(rows, []string{
					b.Addr, b.Reason, b.Created.Format(time.DateTime), expires,
					strconv.FormatBool(b.Active(now)),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

// parseDuration accepts Go durations plus a "d" suffix for days. Empty is
// zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
