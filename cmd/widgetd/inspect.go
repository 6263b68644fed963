package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-chat-widget/internal/config"
	"github.com/tbourn/go-chat-widget/internal/services"
	"github.com/tbourn/go-chat-widget/internal/storage"
)

var (
	inspectProfile string
	inspectDriver  string
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectProfile, "profile", "", "profile id to dump; lists stored profiles when empty")
	inspectCmd.Flags().StringVar(&inspectDriver, "driver", "", "store driver (overrides STORE_DRIVER)")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump the stored session keys of a profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if inspectDriver != "" {
			cfg.Store.Driver = inspectDriver
		}
		backend, err := storage.Open(storage.OpenOptions{
			Driver:     cfg.Store.Driver,
			DBPath:     cfg.Store.DBPath,
			PebblePath: cfg.Store.PebblePath,
		})
		if err != nil {
			return err
		}
		defer backend.Close()

		out := cmd.OutOrStdout()
		if inspectProfile == "" {
			return listProfiles(cmd.Context(), out, backend)
		}
		if !services.ValidProfileID(inspectProfile) {
			return fmt.Errorf("invalid profile id %q", inspectProfile)
		}
		return dumpProfile(cmd.Context(), out, storage.NewAdapter(backend), inspectProfile)
	},
}

// listProfiles prints every profile that has at least one stored key.
func listProfiles(ctx context.Context, w io.Writer, b storage.Backend) error {
	keys, err := b.Keys(ctx, "profile/")
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	seen := map[string]int{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, "profile/")
		id, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		seen[id]++
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "%d profile(s)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s (%d keys)\n", id, seen[id])
	}
	return nil
}

// dumpProfile prints the message log, the visitor record and the visited
// marker stored for profileID.
func dumpProfile(ctx context.Context, w io.Writer, a *storage.Adapter, profileID string) error {
	scoped := a.WithPrefix(storage.ProfilePrefix(profileID))
	fmt.Fprintf(w, "profile %s\n", profileID)

	for _, key := range []string{storage.KeyMessages, storage.KeyVisitor, storage.KeyVisited} {
		raw, err := scoped.Raw(ctx, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Fprintf(w, "\n%s: <unset>\n", key)
			continue
		case err != nil:
			return fmt.Errorf("read %s: %w", key, err)
		}

		fmt.Fprintf(w, "\n%s (%s):\n", key, humanize.Bytes(uint64(len(raw))))
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "  ", "  "); err != nil {
			// Corrupt entries are shown as-is; the session drops them on load.
			fmt.Fprintf(w, "  %s\n", raw)
			continue
		}
		fmt.Fprintf(w, "  %s\n", pretty.String())
	}
	return nil
}
