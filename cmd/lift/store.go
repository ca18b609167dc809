// ABOUTME: CLI commands for the local progress store and its Charm Cloud sync.
// ABOUTME: Shows stored keys and sync state, pulls from the cloud, and rebuilds the local copy.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/lift/internal/charm"
	"github.com/harperreed/lift/internal/kv"
)

var (
	storePrefix      string
	storeSkipConfirm bool
)

var errNotCharm = errors.New("only the charm store syncs with Charm Cloud (set store: charm)")

var storeCmd = &cobra.Command{
	Use:         "store",
	Short:       "Inspect the local progress store",
	Annotations: map[string]string{"needs": needsStore},
	Long: `Inspect the store that keeps workout progress, completion markers,
and the offline event log.

With the charm store, progress is also synced to Charm Cloud so another
device can pick up an interrupted workout.

EXAMPLES:

  lift store status
  lift store status --prefix completion:
  lift store sync
  lift store reset --yes`,
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and stored keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStoreStatus(store, storePrefix)
	},
}

var storeSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync progress with Charm Cloud",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ok := store.(*charm.Client)
		if !ok {
			return errNotCharm
		}
		if c.IsReadOnly() {
			return charm.ErrReadOnly
		}
		if err := c.Sync(); err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}
		color.Green("✓ Synced with Charm Cloud")
		return nil
	},
}

var storeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Rebuild the local store from Charm Cloud",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ok := store.(*charm.Client)
		if !ok {
			return errNotCharm
		}
		if c.IsReadOnly() {
			return charm.ErrReadOnly
		}
		if !storeSkipConfirm && !confirm(os.Stdin, "Wipe local progress and rebuild it from Charm Cloud?") {
			fmt.Println("Reset canceled.")
			return nil
		}
		if err := c.Reset(); err != nil {
			return fmt.Errorf("failed to reset: %w", err)
		}
		color.Green("✓ Local store rebuilt from Charm Cloud")
		return nil
	},
}

func init() {
	storeStatusCmd.Flags().StringVar(&storePrefix, "prefix", "", "only list keys with this prefix")
	storeResetCmd.Flags().BoolVarP(&storeSkipConfirm, "yes", "y", false, "Skip confirmation prompt")
	storeCmd.AddCommand(storeStatusCmd, storeSyncCmd, storeResetCmd)
	rootCmd.AddCommand(storeCmd)
}

func printStoreStatus(s kv.Store, prefix string) error {
	faint := color.New(color.Faint)

	fmt.Printf("Store: %s\n", cfg.GetStore())
	if c, ok := s.(*charm.Client); ok {
		if id, err := c.ID(); err == nil {
			fmt.Printf("  Account: %s\n", id)
		} else {
			fmt.Printf("  Account: %s\n", faint.Sprint("not linked"))
		}
		fmt.Printf("  Auto-sync: %v\n", c.AutoSync())
		if c.IsReadOnly() {
			color.Yellow("  Read-only: locked by another process")
		}
	}

	l, ok := s.(kv.Lister)
	if !ok {
		return nil
	}
	keys, err := l.Keys(prefix)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println(faint.Sprint("  No keys stored."))
		return nil
	}
	fmt.Println()
	for _, k := range keys {
		size := 0
		if v, err := s.Get(k); err == nil {
			size = len(v)
		}
		fmt.Printf("  %s %s\n", padRight(k, 24), faint.Sprintf("%d bytes", size))
	}
	return nil
}

// confirm asks a yes/no question on in and reports whether the answer was yes.
func confirm(in io.Reader, prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
