// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JBever/SOCs/soc"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:     "export [system.socs]",
	Short:   "writes a solved system as GraphViz dot or .bdd text",
	Run:     cmdExport,
	Version: buildString(),
}

var (
	fFormat     string
	fExportPath string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.PersistentFlags().StringVar(&fFormat, "format", "dot", "dot or bdd")
	exportCmd.PersistentFlags().StringVar(&fExportPath, "out", "", "specifies full path for the export -- default is ./[system].[format]")
}

func cmdExport(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Println("missing system path -- socs export -h for help")
		os.Exit(-1)
	}
	systemPath := filepath.Clean(args[0])
	systemName := filepath.Base(systemPath)
	systemName = systemName[0 : len(systemName)-len(filepath.Ext(systemName))]
	if !fileExists(systemPath) {
		fmt.Println(systemPath, "does not exist")
		os.Exit(-1)
	}
	if fFormat != "dot" && fFormat != "bdd" {
		fmt.Println("unknown format", fFormat)
		os.Exit(-1)
	}

	var sys *soc.System
	if strings.EqualFold(filepath.Ext(systemPath), ".bdd") {
		f, err := os.Open(systemPath)
		if err != nil {
			fmt.Println("error:", err)
			os.Exit(-1)
		}
		sys, err = soc.ParseBDD(f)
		f.Close()
		if err != nil {
			fmt.Println("can't parse system:", err)
			os.Exit(-1)
		}
	} else {
		var err error
		sys, err = soc.Load(systemPath)
		if err != nil {
			fmt.Println("can't load system:", err)
			os.Exit(-1)
		}
	}

	outPath := filepath.Join(".", systemName+"."+fFormat)
	if fExportPath != "" {
		outPath = fExportPath
	}
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(-1)
	}
	defer out.Close()

	switch fFormat {
	case "bdd":
		err = sys.WriteBDD(out)
	case "dot":
		if sys.NbShards() != 1 {
			fmt.Println("dot export needs a single equation; solve the system first")
			os.Exit(-1)
		}
		err = sys.Shard(0).WriteDot(out)
	}
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(-1)
	}
	fmt.Printf("%-30s %-30s\n", "exported system", outPath)
}
