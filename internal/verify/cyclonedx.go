/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package verify

import "fmt"

var cyclonedxChecks = []Check{
	{ID: "cyclonedx.bom_ref_unique", Run: cyclonedxBOMRefUnique},
	{ID: "cyclonedx.dependency_refs_resolve", Run: cyclonedxDependencyRefsResolve},
}

func cyclonedxBOMRefs(doc map[string]any) map[string]bool {
	refs := map[string]bool{}
	if meta, ok := obj(doc, "metadata", "component"); ok {
		if ref := asStr(meta["bom-ref"]); ref != "" {
			refs[ref] = true
		}
	}
	for _, c := range arr(doc, "components") {
		if comp, ok := asObj(c); ok {
			if ref := asStr(comp["bom-ref"]); ref != "" {
				refs[ref] = true
			}
		}
	}
	return refs
}

func cyclonedxBOMRefUnique(doc map[string]any) []string {
	seen := map[string]bool{}
	var messages []string
	check := func(ref string) {
		if ref == "" {
			return
		}
		if seen[ref] {
			messages = append(messages, fmt.Sprintf("duplicate bom-ref %q", ref))
		}
		seen[ref] = true
	}
	if meta, ok := obj(doc, "metadata", "component"); ok {
		check(asStr(meta["bom-ref"]))
	}
	for _, c := range arr(doc, "components") {
		if comp, ok := asObj(c); ok {
			check(asStr(comp["bom-ref"]))
		}
	}
	return messages
}

func cyclonedxDependencyRefsResolve(doc map[string]any) []string {
	known := cyclonedxBOMRefs(doc)
	var messages []string
	for _, d := range arr(doc, "dependencies") {
		dep, ok := asObj(d)
		if !ok {
			continue
		}
		ref := asStr(dep["ref"])
		if ref != "" && !known[ref] {
			messages = append(messages, fmt.Sprintf("dependency ref %q does not resolve to a declared bom-ref", ref))
		}
		for _, dd := range asArr(dep["dependsOn"]) {
			target := asStr(dd)
			if target != "" && !known[target] {
				messages = append(messages, fmt.Sprintf("dependsOn %q does not resolve to a declared bom-ref", target))
			}
		}
	}
	return messages
}
