// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command arfdemo exercises the backtrace engine from a few frames of
// real call depth, so its own source doubles as a worked example of
// what a symbolized, optionally variable-annotated backtrace looks
// like for this project.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arfero/arfero/arf"
)

func main() {
	root := &cobra.Command{
		Use:   "arfdemo",
		Short: "Print a sample backtrace through main -> foo -> bar",
	}

	var printVars bool
	root.Flags().BoolVar(&printVars, "printvars", false, "decode in-scope variables at each frame")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		if printVars {
			os.Setenv("ARF_PRINTVARS", "1")
		}
		foo()
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func foo() {
	bar()
}

func bar() {
	i := 42
	_ = i
	arf.Barf("hi")
}
