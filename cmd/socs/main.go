// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

// socs is a CLI tool around the socs library: it solves systems of CRHS
// equations given in .bdd text form and searches solved systems for
// differential trails and linear hulls.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	socs "github.com/JBever/SOCs"
)

var rootCmd = &cobra.Command{
	Use:     "socs",
	Short:   "build, solve and search systems of CRHS equations",
	Version: buildString(),
}

func buildString() string {
	return fmt.Sprintf("socs version %s", socs.Version)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(-1)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
