/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

//go:build linux

package store

import "golang.org/x/sys/unix"

// setETagXattr stores the upstream ETag as the "user.etag" extended
// attribute, the Linux convention for user-namespace metadata.
func setETagXattr(path, etag string) error {
	return unix.Setxattr(path, "user.etag", []byte(etag), 0)
}
