// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/spf13/cobra"

	"github.com/JBever/SOCs/search"
	"github.com/JBever/SOCs/soc"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:     "search [system.socs]",
	Short:   "enumerates the best trails or hulls of a solved system",
	Run:     cmdSearch,
	Version: buildString(),
}

var (
	fLimit     int
	fMaxWeight float64
	fMode      string
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.PersistentFlags().IntVar(&fLimit, "limit", 10, "number of trails to report")
	searchCmd.PersistentFlags().Float64Var(&fMaxWeight, "max-weight", math.Inf(1), "discard trails heavier than this")
	searchCmd.PersistentFlags().StringVar(&fMode, "mode", "differential", "differential or linear; must match the system")
}

func cmdSearch(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Println("missing system path -- socs search -h for help")
		os.Exit(-1)
	}
	systemPath := filepath.Clean(args[0])
	if !fileExists(systemPath) {
		fmt.Println(systemPath, "does not exist")
		os.Exit(-1)
	}

	var mode soc.Mode
	switch fMode {
	case "differential":
		mode = soc.Differential
	case "linear":
		mode = soc.Linear
	default:
		fmt.Println("unknown mode", fMode)
		os.Exit(-1)
	}

	sys, err := soc.Load(systemPath)
	if err != nil {
		fmt.Println("can't load system:", err)
		os.Exit(-1)
	}
	fmt.Printf("%-30s %-30s %s, %d nodes\n", "loaded solved system", systemPath, sys.CipherID, sys.NodeCount())

	opts := []search.Option{search.WithLimit(fLimit)}
	if !math.IsInf(fMaxWeight, 1) {
		opts = append(opts, search.WithMaxWeight(fMaxWeight))
	}
	trails, err := search.Run(sys, mode, opts...)
	if err != nil {
		fmt.Println("search failed:", err)
		os.Exit(-1)
	}

	for i, tr := range trails {
		tag := ""
		if tr.Approximate {
			tag = " (approximate)"
		}
		fmt.Printf("#%-3d weight %.4f%s\n", i+1, tr.Weight, tag)
		for r, v := range tr.Rounds {
			fmt.Printf("     round %-2d %s\n", r, vectorString(v, sys.Width))
		}
		if tr.Output != nil {
			fmt.Printf("     output   %s\n", vectorString(tr.Output, sys.Width))
		}
	}
	if len(trails) == 0 {
		fmt.Println("no trail within the given bounds")
	}
}

func vectorString(v *bitset.BitSet, width int) string {
	var b strings.Builder
	for i := 0; i < width; i++ {
		if v.Test(uint(i)) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
