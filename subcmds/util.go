// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"maps"
	"slices"
)

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
