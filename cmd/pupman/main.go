// pupman command entry point
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/pupman/cmd/cli"
)

func main() {
	manager := cli.NewManager()
	if err := manager.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pupman: %v\n", err)
		os.Exit(1)
	}
}
