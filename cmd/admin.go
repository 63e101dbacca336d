// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/coldmesh/pkg/admin"
	"github.com/Thermoquad/coldmesh/pkg/config"
	"github.com/Thermoquad/coldmesh/pkg/mesh"
)

const wifiPassEnv = "COLDMESH_WIFI_PASS"

var adminAddr string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Control a running node over its admin RPC socket",
	Long: `Send commands to a node started with "coldmesh run".

The address defaults to admin.listen in the config file, then ` + defaultAdminAddr + `.
Addresses containing a slash are Unix sockets.`,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.PersistentFlags().StringVar(&adminAddr, "addr", "", "Admin RPC address")

	adminCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show node status and alarms",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(st)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "temps",
			Short: "List the temperature table",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				peers, err := c.Temps(ctx)
				if err != nil {
					return err
				}
				printPeers(peers)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "roster",
			Short: "Show the roster",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				roster, err := c.Roster(ctx)
				if err != nil {
					return err
				}
				fmt.Println(strings.Join(roster, ","))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add-node <id>",
			Short: "Add a node to the roster",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				roster, err := c.AddNode(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Roster: %s\n", strings.Join(roster, ","))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "silence",
			Short: "Silence alarms",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				until, err := c.Silence(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Alarms silenced until %s\n", until.Local().Format("2006-01-02 15:04"))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-time [YYYY,MM,DD,HH,mm | RFC3339]",
			Short: "Set the node clock (default: this host's time)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				t := time.Now()
				if len(args) == 1 {
					var err error
					if t, err = admin.ParseSetTime(args[0], time.Local); err != nil {
						return err
					}
				}
				if err := c.SetTime(ctx, t); err != nil {
					return err
				}
				fmt.Printf("Clock set to %s\n", t.Format("2006-01-02 15:04:05"))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-node-id <id>",
			Short: "Change the node id",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				if err := c.SetNodeID(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Node id set to %s\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-wifi <ssid>",
			Short: "Change the access point credentials",
			Long:  "The password is read from " + wifiPassEnv + " or prompted for.",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *admin.Client, args []string) error {
				pass, err := readSecret(wifiPassEnv, "Wi-Fi password: ")
				if err != nil {
					return err
				}
				if err := c.SetWiFi(ctx, args[0], pass); err != nil {
					return err
				}
				fmt.Printf("Wi-Fi set to %s\n", args[0])
				return nil
			}),
		},
	)
}

func resolveAdminAddr() string {
	if adminAddr != "" {
		return adminAddr
	}
	if cfg, _, err := config.Load(configPath); err == nil && cfg.Admin.Listen != "" {
		return cfg.Admin.Listen
	}
	return defaultAdminAddr
}

func withClient(fn func(ctx context.Context, c *admin.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := admin.Dial(resolveAdminAddr())
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		return fn(ctx, c, args)
	}
}

func printStatus(st admin.StatusReply) {
	clock := "trusted"
	if st.AwaitingSync {
		clock = "awaiting sync"
	} else if !st.ClockTrusted {
		clock = "adopted/manual"
	}
	fmt.Printf("Node:    %s\n", st.Self)
	fmt.Printf("Time:    %s (%s)\n", st.Time.Format("2006-01-02 15:04:05"), clock)
	fmt.Printf("Roster:  %s\n", strings.Join(st.Roster, ","))
	fmt.Printf("Traffic: %d sent, %d received, %d merged\n", st.Sent, st.Received, st.Merged)
	if st.Silenced {
		fmt.Printf("Alarms:  silenced until %s\n", st.SilenceUntil.Local().Format("15:04"))
	}
	if len(st.Alarms) == 0 {
		fmt.Printf("Alarms:  none\n")
	}
	for _, a := range st.Alarms {
		text := "node " + a.Node + " down"
		if a.Kind == mesh.AlarmProbeFault.String() {
			text = "temperature probe disconnected"
		}
		if !a.Audible {
			text += " (quiet)"
		}
		fmt.Printf("ALARM:   %s\n", text)
	}
	fmt.Println()
	printPeers(st.Peers)
}

func printPeers(peers []admin.PeerReply) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tTEMP1\tTEMP2\tTEMP3\tLAST UPDATE\tSTATUS")
	for _, p := range peers {
		lastUpdate := fmt.Sprintf("%d", p.LastUpdate)
		if p.TrustedClock {
			lastUpdate = time.Unix(p.LastUpdate, 0).Format("2006-01-02 15:04:05")
		}
		status := p.Health
		if status == "" {
			status = "-"
		}
		if !p.InRoster {
			status += " (not in roster)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, temp(p.Temps[0]), temp(p.Temps[1]), temp(p.Temps[2]), lastUpdate, status)
	}
	w.Flush()
}

func temp(t *float64) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *t)
}
