// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arfero/arfero/classify"
)

func TestPlatformUnwindFindsCaller(t *testing.T) {
	s := NewPlatform()
	require.Equal(t, "platform", s.Name())

	pcs, err := callThrough(s)
	require.NoError(t, err)
	require.NotEmpty(t, pcs)
}

func callThrough(s Strategy) ([]uintptr, error) {
	return s.Unwind(0, 32)
}

func TestPlatformFramesWrapsUnwind(t *testing.T) {
	s := NewPlatform()
	frames, err := s.Frames(0, 32)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	for _, f := range frames {
		require.NotZero(t, f.PC)
	}
}

func TestSelectPrefersFramePointerWhenAvailable(t *testing.T) {
	var c classify.Cache
	s := Select(&c)
	require.NotNil(t, s)
}
