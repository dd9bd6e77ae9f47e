// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// braid is a keyboard-driven terminal client for threaded LLM chat.
package main

import (
	"fmt"
	"os"

	"github.com/kestrelab/braid/internal/cli"
)

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "braid:", err)
		fmt.Fprint(os.Stderr, cli.Usage)
		os.Exit(2)
	}
	os.Exit(cli.Run(opts))
}
