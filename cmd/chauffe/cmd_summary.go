package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"chauffe/internal/cloudmanager"
	"chauffe/internal/logging"
	"chauffe/internal/stats"
	"chauffe/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var summaryRefresh bool

// listingFingerprint hashes the listing fields that change when an owner's
// blockchains change. Chain lengths are left out: they move constantly and
// the TTL covers them.
func listingFingerprint(items []cloudmanager.Blockchain, ownerID string) (string, error) {
	type key struct {
		ID        string          `json:"id"`
		CreatedAt string          `json:"created_at"`
		DLOID     json.RawMessage `json:"dloid"`
	}
	var keys []key
	for _, bc := range items {
		if bc.OwnerID == ownerID {
			keys = append(keys, key{ID: bc.ID, CreatedAt: bc.CreatedAt, DLOID: bc.DLOID})
		}
	}
	return store.Fingerprint(keys)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ownerID := args[0]
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, stop, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer stop()

	summary, cached, err := cachedSummary(ctx, client, ownerID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, summary)
	}
	renderSummary(out, summary, cached)
	return nil
}

// cachedSummary serves the summary from the profile cache when it is enabled
// and fresh, and fetches and stores it otherwise. Cache failures degrade to
// a direct fetch.
func cachedSummary(ctx context.Context, client *cloudmanager.Client, ownerID string) (stats.Summary, bool, error) {
	log := logging.Get(logging.CategoryStore)
	if err := cloudmanager.ValidateOwner(ownerID); err != nil {
		return stats.Summary{}, false, err
	}
	if !cfg.Cache.Enabled {
		s, err := client.UserSummary(ctx, ownerID)
		return s, false, err
	}

	cache, err := store.NewProfileCache(cfg.Cache.DatabasePath, cfg.GetCacheTTL(), log)
	if err != nil {
		log.Warn("Profile cache unavailable; fetching directly", zap.Error(err))
		s, err := client.UserSummary(ctx, ownerID)
		return s, false, err
	}
	defer cache.Close()

	list, err := client.ListBlockchains(ctx)
	if err != nil {
		return stats.Summary{}, false, err
	}
	fp, err := listingFingerprint(list.Items, ownerID)
	if err != nil {
		return stats.Summary{}, false, err
	}

	now := time.Now()
	if summaryRefresh {
		if err := cache.Invalidate(ownerID); err != nil {
			log.Warn("Cache invalidate failed", zap.Error(err))
		}
	} else if entry, _, err := cache.Get(ownerID, fp, now); err != nil {
		log.Warn("Cache read failed", zap.Error(err))
	} else if entry != nil {
		var s stats.Summary
		if err := json.Unmarshal(entry.Payload, &s); err == nil {
			return s, true, nil
		}
		log.Warn("Cached summary did not decode; refetching", zap.String("owner", ownerID))
	}

	s, err := client.UserSummaryFromList(ctx, ownerID, list)
	if err != nil {
		return stats.Summary{}, false, err
	}
	if err := cache.Put(ownerID, fp, s, now); err != nil {
		log.Warn("Cache write failed", zap.Error(err))
	}
	return s, false, nil
}

func renderSummary(out io.Writer, s stats.Summary, cached bool) {
	source := "live"
	if cached {
		source = "cached"
	}
	lines := []string{
		title("Owner summary"),
		row("Owner", s.OwnerID),
		row("Blockchains", s.TotalBlockchains),
		row("Blocks", s.TotalBlocks),
		row("Pending tx", s.TotalTransactions),
		row("CHAUFFEcoins", s.TotalChauffecoins),
		row("Source", mutedStyle.Render(source)),
	}
	if s.Overflow {
		lines = append(lines, errStyle.Render("CHAUFFEcoin total overflowed and is saturated"))
	}
	if s.Skipped > 0 {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("%d DLOID record(s) skipped", s.Skipped)))
		for _, e := range s.Errors {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("  #%d: %s", e.Index, e.Reason)))
		}
	}
	for _, c := range s.Controllers {
		lines = append(lines, row("Controller", fmt.Sprintf("%s (%s) on %s", c.ControllerName, c.ControllerRole, c.BlockchainName)))
	}
	fmt.Fprintln(out, box(lines...))
}
