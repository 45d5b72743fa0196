/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"os"
	"strings"

	"github.com/chainguard-dev/advisory-sync/internal/fetcher"
)

// NewFromPublisher builds the right Source for publisher: a FileSource when publisher
// names an existing local directory, an HTTPSource otherwise (full URL or
// bare domain, discovered per §4.2).
func NewFromPublisher(publisher string, f *fetcher.Fetcher) Source {
	if isLocalDir(publisher) {
		return NewFile(publisher)
	}
	return New(publisher, f)
}

func isLocalDir(publisher string) bool {
	if strings.Contains(publisher, "://") {
		return false
	}
	fi, err := os.Stat(publisher)
	return err == nil && fi.IsDir()
}
