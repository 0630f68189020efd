// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command erodemo drives the leak detector interactively: a "run"
// subcommand simulates a workload under ero's signal protocol, and an
// "inspect" subcommand opens a small REPL for issuing malloc/free/
// report commands by hand and watching the bookkeeper react.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/arfero/arfero/ero"
)

func main() {
	root := &cobra.Command{Use: "erodemo"}
	root.AddCommand(runCmd(), inspectCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Allocate and free a handful of pointers under a Detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := ero.New()
			d.Start()
			d.Begin()
			defer d.Stop()

			d.In.Malloc(0x1000, 64)
			d.In.Malloc(0x2000, 128)
			d.In.Free(0x1000)
			fmt.Println("done; run erodemo inspect for an interactive session")
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Interactively issue malloc/free/report commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL()
		},
	}
}

func runREPL() error {
	d := ero.New()
	d.Start()
	d.Begin()
	defer d.Stop()

	rl, err := readline.New("erodemo> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("commands: malloc <ptr> <size> | free <ptr> | report | quit")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return nil
		}
		if err := dispatch(d, strings.Fields(line)); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func dispatch(d *ero.Detector, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)
	case "malloc":
		if len(fields) != 3 {
			return fmt.Errorf("usage: malloc <ptr> <size>")
		}
		ptr, size, err := parsePtrSize(fields[1], fields[2])
		if err != nil {
			return err
		}
		d.In.Malloc(ptr, size)
	case "free":
		if len(fields) != 2 {
			return fmt.Errorf("usage: free <ptr>")
		}
		ptr, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return err
		}
		d.In.Free(uintptr(ptr))
	case "report":
		d.Force()
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func parsePtrSize(ptrStr, sizeStr string) (uintptr, int64, error) {
	ptr, err := strconv.ParseUint(ptrStr, 0, 64)
	if err != nil {
		return 0, 0, err
	}
	size, err := strconv.ParseInt(sizeStr, 0, 64)
	if err != nil {
		return 0, 0, err
	}
	return uintptr(ptr), size, nil
}
