// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTab/pkg/ux"
	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
	"github.com/AleutianAI/AleutianTab/services/tab/transport"
)

// clientTimeout bounds one CLI round trip, spawn time included.
const clientTimeout = 30 * time.Second

// withClient runs fn against a connected daemon and tears the
// connection down afterwards.
func withClient(fn func(ctx context.Context, conn *transport.Conn) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	conn, cleanup, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, conn)
}

func runPing(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, conn *transport.Conn) error {
		start := time.Now()
		res, err := conn.Ping(ctx)
		if err != nil {
			return err
		}
		ux.Success(fmt.Sprintf("daemon answered %q in %s", res.Status, time.Since(start).Round(time.Millisecond)))
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, conn *transport.Conn) error {
		res, err := conn.GetStats(ctx)
		if err != nil {
			return err
		}

		ux.Title("Daemon")
		ux.KeyValue("model", res.Model)
		ux.KeyValue("requests", fmt.Sprintf("%d", res.RequestsTotal))
		ux.KeyValue("uptime", (time.Duration(res.UptimeSeconds) * time.Second).String())
		fmt.Println()

		ux.Title("Memo cache")
		tbl := ux.NewTable("SIZE", "MAX", "HITS", "FILES")
		tbl.Row(
			fmt.Sprintf("%d", res.Cache.Size),
			fmt.Sprintf("%d", res.Cache.MaxSize),
			fmt.Sprintf("%d", res.Cache.TotalHits),
			fmt.Sprintf("%d", res.Cache.FilesTracked),
		)
		tbl.Print()
		return nil
	})
}

func runRLStats(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, conn *transport.Conn) error {
		res, err := conn.GetRLStats(ctx)
		if err != nil {
			return err
		}
		printRLStats(res)
		return nil
	})
}

// printRLStats renders the bandit state shared by rlstats and the
// demo's exit summary.
func printRLStats(res protocol.GetRLStatsResult) {
	ux.Title(fmt.Sprintf("Bandit state (%d interactions)", res.TotalInteractions))
	if len(res.Buckets) == 0 {
		ux.Muted("no feedback recorded yet")
		return
	}

	buckets := make([]string, 0, len(res.Buckets))
	for b := range res.Buckets {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	for _, bucket := range buckets {
		fmt.Println()
		ux.Muted(bucket)

		arms := res.Buckets[bucket]
		names := make([]string, 0, len(arms))
		for n := range arms {
			names = append(names, n)
		}
		sort.Strings(names)

		tbl := ux.NewTable("STRATEGY", "MEAN", "OBS", "STATE")
		for _, name := range names {
			arm := arms[name]
			state := "active"
			if arm.Disabled {
				state = "disabled"
			}
			tbl.Row(name, fmt.Sprintf("%.3f", arm.Mean), fmt.Sprintf("%d", arm.Observations), state)
		}
		tbl.Print()
	}
}

func runClearCache(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, conn *transport.Conn) error {
		res, err := conn.ClearCache(ctx)
		if err != nil {
			return err
		}
		ux.Success(fmt.Sprintf("cleared %d memo entries", res.Cleared))
		return nil
	})
}

func runSetModel(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, conn *transport.Conn) error {
		res, err := conn.SetModel(ctx, args[0])
		if err != nil {
			return err
		}
		ux.Success("model switched to " + res.Model)
		return nil
	})
}
