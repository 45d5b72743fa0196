/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

//go:build darwin

package store

import "golang.org/x/sys/unix"

// setETagXattr stores the upstream ETag as the "etag" extended attribute,
// matching macOS's unprefixed user attribute namespace.
func setETagXattr(path, etag string) error {
	return unix.Setxattr(path, "etag", []byte(etag), 0, 0)
}
