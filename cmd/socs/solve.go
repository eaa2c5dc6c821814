// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JBever/SOCs/profile"
	"github.com/JBever/SOCs/soc"
	"github.com/JBever/SOCs/solver"
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:     "solve [system.bdd]",
	Short:   "joins the system's equations into a single one, pruning at the node threshold",
	Run:     cmdSolve,
	Version: buildString(),
}

var (
	fThreshold   int
	fOutPath     string
	fProfilePath string
)

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.PersistentFlags().IntVar(&fThreshold, "threshold", 0, "node ceiling enforced per merge result (required)")
	solveCmd.PersistentFlags().StringVar(&fOutPath, "out", "", "specifies full path for the solved system -- default is ./[system].socs")
	solveCmd.PersistentFlags().StringVar(&fProfilePath, "profile", "", "writes a pprof profile of the solve to the given path")
	_ = solveCmd.MarkPersistentFlagRequired("threshold")
}

func cmdSolve(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Println("missing system path -- socs solve -h for help")
		os.Exit(-1)
	}
	systemPath := filepath.Clean(args[0])
	systemName := filepath.Base(systemPath)
	systemName = systemName[0 : len(systemName)-len(filepath.Ext(systemName))]
	if !fileExists(systemPath) {
		fmt.Println(systemPath, "does not exist")
		os.Exit(-1)
	}

	f, err := os.Open(systemPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(-1)
	}
	sys, err := soc.ParseBDD(f)
	f.Close()
	if err != nil {
		fmt.Println("can't parse system:", err)
		os.Exit(-1)
	}
	fmt.Printf("%-30s %-30s %d equations, %d nodes\n", "loaded system", systemPath, sys.NbShards(), sys.NodeCount())

	if fProfilePath != "" {
		p := profile.Start(profile.WithPath(fProfilePath))
		defer p.Stop()
	}

	s, err := solver.New(sys, solver.WithThreshold(fThreshold))
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(-1)
	}
	start := time.Now()
	if err := s.Solve(); err != nil {
		fmt.Println("solving failed:", err)
		os.Exit(-1)
	}
	fmt.Printf("%-30s %-30s %d nodes\n", s.Status().String(), time.Since(start), sys.Final().NodeCount())

	outPath := filepath.Join(".", systemName+".socs")
	if fOutPath != "" {
		outPath = fOutPath
	}
	if err := soc.Store(outPath, sys); err != nil {
		fmt.Println("error:", err)
		os.Exit(-1)
	}
	fmt.Printf("%-30s %-30s\n", "stored solved system", outPath)
}
