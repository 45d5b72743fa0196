/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package verify

import "fmt"

var csafChecks = []Check{
	{ID: "csaf.publisher_name", Run: csafPublisherName},
	{ID: "csaf.title", Run: csafTitle},
	{ID: "csaf.tracking_id", Run: csafTrackingID},
	{ID: "csaf.revision_history", Run: csafRevisionHistory},
	{ID: "csaf.vex_vulnerabilities", Run: csafVEXVulnerabilities},
	{ID: "csaf.product_ids_resolve", Run: csafProductIDsResolve},
	{ID: "csaf.relationship_consistency", Run: csafRelationshipConsistency},
	{ID: "csaf.vex_category", Run: csafVEXCategory},
	{ID: "csaf.vulnerability_identifiers", Run: csafVulnerabilityIdentifiers},
}

func csafPublisherName(doc map[string]any) []string {
	if str(doc, "document", "publisher", "name") == "" {
		return []string{"document.publisher.name is empty"}
	}
	return nil
}

func csafTitle(doc map[string]any) []string {
	if str(doc, "document", "title") == "" {
		return []string{"document.title is empty"}
	}
	return nil
}

func csafTrackingID(doc map[string]any) []string {
	if str(doc, "document", "tracking", "id") == "" {
		return []string{"document.tracking.id is empty"}
	}
	return nil
}

func csafRevisionHistory(doc map[string]any) []string {
	if len(arr(doc, "document", "tracking", "revision_history")) == 0 {
		return []string{"document.tracking.revision_history is empty"}
	}
	return nil
}

func csafVEXVulnerabilities(doc map[string]any) []string {
	if str(doc, "document", "category") != "csaf_vex" {
		return nil
	}
	if len(arr(doc, "vulnerabilities")) == 0 {
		return []string{"csaf_vex document has no vulnerabilities"}
	}
	return nil
}

// collectProductIDs walks product_tree.branches recursively (each branch may
// carry a "product" with a "product_id", and nest further "branches") and
// also collects product_tree.relationships' declared full_product_names.
func collectProductIDs(doc map[string]any) map[string]bool {
	ids := map[string]bool{}
	tree, ok := obj(doc, "product_tree")
	if !ok {
		return ids
	}
	var walkBranches func(nodes []any)
	walkBranches = func(nodes []any) {
		for _, n := range nodes {
			node, ok := asObj(n)
			if !ok {
				continue
			}
			if product, ok := asObj(node["product"]); ok {
				if id := asStr(product["product_id"]); id != "" {
					ids[id] = true
				}
			}
			if sub, ok := node["branches"].([]any); ok {
				walkBranches(sub)
			}
		}
	}
	if branches, ok := tree["branches"].([]any); ok {
		walkBranches(branches)
	}
	if rels, ok := tree["relationships"].([]any); ok {
		for _, r := range rels {
			rel, ok := asObj(r)
			if !ok {
				continue
			}
			if fpn, ok := asObj(rel["full_product_name"]); ok {
				if id := asStr(fpn["product_id"]); id != "" {
					ids[id] = true
				}
			}
		}
	}
	return ids
}

func csafProductIDsResolve(doc map[string]any) []string {
	known := collectProductIDs(doc)
	var messages []string

	for _, v := range arr(doc, "vulnerabilities") {
		vuln, ok := asObj(v)
		if !ok {
			continue
		}
		if status, ok := asObj(vuln["product_status"]); ok {
			for _, ids := range status {
				list, ok := ids.([]any)
				if !ok {
					continue
				}
				for _, id := range list {
					pid := asStr(id)
					if pid != "" && !known[pid] {
						messages = append(messages, fmt.Sprintf("unknown product id %q in product_status", pid))
					}
				}
			}
		}
		for _, r := range arr(vuln, "remediations") {
			rem, ok := asObj(r)
			if !ok {
				continue
			}
			for _, id := range asArr(rem["product_ids"]) {
				pid := asStr(id)
				if pid != "" && !known[pid] {
					messages = append(messages, fmt.Sprintf("unknown product id %q in remediations", pid))
				}
			}
		}
	}
	return messages
}

func csafRelationshipConsistency(doc map[string]any) []string {
	known := collectProductIDs(doc)
	tree, ok := obj(doc, "product_tree")
	if !ok {
		return nil
	}
	var messages []string
	for _, r := range asArr(tree["relationships"]) {
		rel, ok := asObj(r)
		if !ok {
			continue
		}
		for _, field := range []string{"product_reference", "relates_to_product_reference"} {
			ref := asStr(rel[field])
			if ref != "" && !known[ref] {
				messages = append(messages, fmt.Sprintf("relationship %s %q does not resolve to a product tree entry", field, ref))
			}
		}
	}
	return messages
}

// csafVEXCategory flags documents that carry VEX-shaped vulnerability status
// (product_status present) but do not declare category "csaf_vex".
func csafVEXCategory(doc map[string]any) []string {
	hasVEXShape := false
	for _, v := range arr(doc, "vulnerabilities") {
		vuln, ok := asObj(v)
		if !ok {
			continue
		}
		if _, ok := vuln["product_status"]; ok {
			hasVEXShape = true
			break
		}
	}
	if hasVEXShape && str(doc, "document", "category") != "csaf_vex" {
		return []string{"document has VEX-shaped vulnerability status but category is not csaf_vex"}
	}
	return nil
}

func csafVulnerabilityIdentifiers(doc map[string]any) []string {
	var messages []string
	for i, v := range arr(doc, "vulnerabilities") {
		vuln, ok := asObj(v)
		if !ok {
			continue
		}
		if asStr(vuln["cve"]) != "" {
			continue
		}
		if ids, ok := vuln["ids"].([]any); ok && len(ids) > 0 {
			continue
		}
		messages = append(messages, fmt.Sprintf("vulnerabilities[%d] has neither cve nor ids", i))
	}
	return messages
}
