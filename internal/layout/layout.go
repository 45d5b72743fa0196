/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package layout computes the on-disk directory name for a distribution,
// shared by the store (which writes the tree) and the file source (which
// reads it back).
package layout

import "strings"

// EncodeDistDir percent-encodes every non-alphanumeric byte of a
// distribution URL, producing a directory name that is a total function of
// the URL: distinct URLs never collide, and the same URL always maps to the
// same directory.
func EncodeDistDir(distURL string) string {
	var sb strings.Builder
	sb.Grow(len(distURL))
	for i := 0; i < len(distURL); i++ {
		c := distURL[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		default:
			sb.WriteByte('%')
			sb.WriteString(strings.ToUpper(hexByte(c)))
		}
	}
	return sb.String()
}

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0x0f]})
}
