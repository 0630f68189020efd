// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package module

import (
	"golang.org/x/sys/unix"
)

// statKey returns the (device, inode) pair identifying the file at
// path, used to dedup candidate debug files reached by different
// paths. The zero key (and false) is returned if path can't be stat'd.
func statKey(path string) ([2]uint64, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return [2]uint64{}, false
	}
	return [2]uint64{uint64(st.Dev), uint64(st.Ino)}, true
}
