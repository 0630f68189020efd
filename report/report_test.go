// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arfero/arfero/backtrace"
	"github.com/arfero/arfero/leak"
)

func TestOutputPathNamesAfterArgv0AndPID(t *testing.T) {
	p := OutputPath()
	require.Contains(t, p, ".leaks")
}

func TestEmitWritesHeaderOnlyOnFirstReport(t *testing.T) {
	book := leak.New(nil, false, -1)
	r := New(book, backtrace.New(4))
	r.path = t.TempDir() + "/test.leaks"

	book.Track(1, 0x1000, 64, 0)
	r.Emit()
	r.Emit()

	data, err := os.ReadFile(r.path)
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(string(data), "profiling started"))
	require.Equal(t, 2, countOccurrences(string(data), "report "))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
			i += len(sub) - 1
		}
	}
	return n
}
