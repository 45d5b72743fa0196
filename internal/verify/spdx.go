/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package verify

import "fmt"

var spdxChecks = []Check{
	{ID: "spdx.no_duplicate_ids", Run: spdxNoDuplicateIDs},
	{ID: "spdx.relationship_endpoints_known", Run: spdxRelationshipEndpointsKnown},
}

// spdxKnownIDs collects every SPDXID declared by the document itself, its
// packages, and its files, plus the external document ref ids it declares.
func spdxKnownIDs(doc map[string]any) (ids map[string]bool, duplicates []string) {
	ids = map[string]bool{}
	seen := map[string]bool{}
	add := func(id string) {
		if id == "" {
			return
		}
		if seen[id] {
			duplicates = append(duplicates, id)
		}
		seen[id] = true
		ids[id] = true
	}

	add(str(doc, "SPDXID"))
	for _, p := range arr(doc, "packages") {
		if pkg, ok := asObj(p); ok {
			add(asStr(pkg["SPDXID"]))
		}
	}
	for _, f := range arr(doc, "files") {
		if file, ok := asObj(f); ok {
			add(asStr(file["SPDXID"]))
		}
	}
	for _, e := range arr(doc, "externalDocumentRefs") {
		if ref, ok := asObj(e); ok {
			if id := asStr(ref["externalDocumentId"]); id != "" {
				ids[id] = true
			}
		}
	}
	return ids, duplicates
}

func spdxNoDuplicateIDs(doc map[string]any) []string {
	_, duplicates := spdxKnownIDs(doc)
	var messages []string
	for _, id := range duplicates {
		messages = append(messages, fmt.Sprintf("duplicate SPDXID %q", id))
	}
	return messages
}

// isKnownSPDXEndpoint reports whether ref resolves to a known element, an
// external document reference (DocumentRef-foo:SPDXRef-bar), or one of the
// special NONE/NOASSERTION values.
func isKnownSPDXEndpoint(ref string, known map[string]bool) bool {
	if ref == "NONE" || ref == "NOASSERTION" {
		return true
	}
	if known[ref] {
		return true
	}
	// An external reference has the shape "DocumentRef-x:SPDXRef-y"; the
	// part before the colon must be a declared external document id.
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return known[ref[:i]]
		}
	}
	return false
}

func spdxRelationshipEndpointsKnown(doc map[string]any) []string {
	known, _ := spdxKnownIDs(doc)
	var messages []string
	for _, r := range arr(doc, "relationships") {
		rel, ok := asObj(r)
		if !ok {
			continue
		}
		for _, field := range []string{"spdxElementId", "relatedSpdxElement"} {
			ref := asStr(rel[field])
			if ref != "" && !isKnownSPDXEndpoint(ref, known) {
				messages = append(messages, fmt.Sprintf("relationship %s %q does not resolve to a known element", field, ref))
			}
		}
	}
	return messages
}
