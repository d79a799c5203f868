package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// cleanupEmptyDirectories removes empty directories under basePath. It
// runs multiple passes so directories that become empty once their
// children are removed also disappear.
func cleanupEmptyDirectories(basePath string) (int, error) {
	removedCount := 0
	maxPasses := 10 // nested empties converge quickly, this is a guard

	for pass := 0; pass < maxPasses; pass++ {
		removed, err := removeEmptyDirectoriesPass(basePath)
		if err != nil {
			return removedCount, fmt.Errorf("cleanup pass %d: %v", pass+1, err)
		}
		removedCount += removed
		if removed == 0 {
			break
		}
	}
	if removedCount > 0 {
		fmt.Printf("🧹 Removed %d empty directories under %s\n", removedCount, basePath)
	}
	return removedCount, nil
}

// removeEmptyDirectoriesPass does one bottom-up sweep.
func removeEmptyDirectoriesPass(basePath string) (int, error) {
	var empty []string
	err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() || path == basePath {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil // unreadable, leave it alone
		}
		if len(entries) == 0 {
			empty = append(empty, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Deepest first so parents emptied by this pass go next pass.
	sort.Slice(empty, func(i, j int) bool { return len(empty[i]) > len(empty[j]) })

	removed := 0
	for _, dir := range empty {
		if err := os.Remove(dir); err == nil {
			removed++
		}
	}
	return removed, nil
}
