package main

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DuplicateRecord describes one resolved duplicate pair for reporting.
type DuplicateRecord struct {
	Kept    string
	Loser   string
	Size    int64
	Hash    string
	Deleted bool
}

// DuplicateResolver finds byte-identical files among siblings of one
// directory and keeps exactly one of each. Duplicates are only detected
// within a directory, not across the tree: the destination buckets
// already separate files by month, so cross-directory copies are
// different captures by construction.
type DuplicateResolver struct {
	settings Settings
	log      *logrus.Logger
	provider *FileProvider
	limiter  *Limiter

	// TieBreak picks the index (0 or 1) of the file to discard from a
	// byte-identical pair. The default discards the name with more digit
	// characters: auto-generated names tend to be longer and more numeric
	// than curated ones. Overridable because it is a heuristic, not a law.
	TieBreak func(nameA, nameB string) int

	mu      sync.Mutex
	records []DuplicateRecord
}

// NewDuplicateResolver creates a resolver with the digit-count tie-break.
func NewDuplicateResolver(settings Settings, log *logrus.Logger, provider *FileProvider, limiter *Limiter) *DuplicateResolver {
	return &DuplicateResolver{
		settings: settings,
		log:      log,
		provider: provider,
		limiter:  limiter,
		TieBreak: moreDigitsLoses,
	}
}

// moreDigitsLoses returns the index of the name containing more digits.
func moreDigitsLoses(nameA, nameB string) int {
	if countDigits(nameA) > countDigits(nameB) {
		return 0
	}
	return 1
}

func countDigits(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			count++
		}
	}
	return count
}

// Resolved returns the duplicates resolved so far, for reporting.
func (d *DuplicateResolver) Resolved() []DuplicateRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DuplicateRecord, len(d.records))
	copy(out, d.records)
	return out
}

// Resolve scans dir and its subdirectories one level at a time and
// returns the number of duplicates resolved. A hash or move failure
// degrades to "unresolved for this pair" and never aborts the walk.
func (d *DuplicateResolver) Resolve(ctx context.Context, dir, quarantine string) (int, error) {
	d.log.WithField("directory", dir).Debug("About to look for duplicates")

	var total int64
	count, err := d.resolveSiblings(ctx, dir, quarantine)
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&total, int64(count))

	subDirs, err := d.provider.SubDirectories(dir)
	if err != nil {
		return int(total), err
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, subDir := range subDirs {
		if subDir == quarantine {
			continue
		}
		subDir := subDir
		group.Go(func() error {
			count, err := d.Resolve(groupCtx, subDir, quarantine)
			atomic.AddInt64(&total, int64(count))
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return int(total), err
	}
	return int(total), nil
}

// resolveSiblings handles one directory level: group by size, hash the
// groups with more than one member, resolve collisions. Size groups run
// in parallel; within a group the hash map is touched sequentially.
func (d *DuplicateResolver) resolveSiblings(ctx context.Context, dir, quarantine string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	bySize := map[int64][]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			d.log.WithError(err).WithField("file", entry.Name()).Warn("Unable to stat file")
			continue
		}
		path := filepath.Join(dir, entry.Name())
		bySize[info.Size()] = append(bySize[info.Size()], path)
	}

	var found int64
	var wg sync.WaitGroup
	for size, paths := range bySize {
		if len(paths) < 2 {
			continue // unique length, no hash needed
		}
		size, paths := size, paths
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&found, int64(d.resolveSizeGroup(ctx, paths, size, quarantine)))
		}()
	}
	wg.Wait()
	return int(found), nil
}

// resolveSizeGroup hashes one same-length group and resolves genuine
// collisions as they appear.
func (d *DuplicateResolver) resolveSizeGroup(ctx context.Context, paths []string, size int64, quarantine string) int {
	d.log.WithField("files", paths).Trace("Found potential duplicates")
	count := 0
	hashes := map[string]string{}
	for _, path := range paths {
		hash, err := d.hashFile(ctx, path)
		if err != nil {
			d.log.WithError(err).WithField("file", path).Warn("Unable to hash file, skipping")
			continue
		}
		existing, collision := hashes[hash]
		if !collision {
			hashes[hash] = path
			continue
		}
		if existing == path {
			continue // same file seen twice
		}
		d.log.WithFields(logrus.Fields{"file1": existing, "file2": path}).
			Info("Duplicates found, same content hash")
		kept, err := d.resolvePair(existing, path, size, hash, quarantine)
		if err != nil {
			d.log.WithError(err).Warn("Unable to resolve duplicate pair")
			continue
		}
		count++
		hashes[hash] = kept
	}
	return count
}

// resolvePair discards one of two byte-identical files and returns the
// path of the keeper.
func (d *DuplicateResolver) resolvePair(pathA, pathB string, size int64, hash, quarantine string) (string, error) {
	pair := [2]string{pathA, pathB}
	loserIdx := d.TieBreak(filepath.Base(pathA), filepath.Base(pathB))
	if loserIdx != 0 {
		loserIdx = 1
	}
	loser, kept := pair[loserIdx], pair[1-loserIdx]

	deleted := d.settings.DeleteDuplicates
	if deleted {
		if err := os.Remove(loser); err != nil {
			return "", err
		}
	} else {
		if err := os.MkdirAll(quarantine, 0755); err != nil {
			return "", err
		}
		// The exclusive create claims the quarantine name atomically, so
		// same-named losers from concurrently resolving groups cannot
		// overwrite each other; the second claimant deletes its loser.
		quarantinePath := filepath.Join(quarantine, filepath.Base(loser))
		claim, err := os.OpenFile(quarantinePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		switch {
		case err == nil:
			claim.Close()
			if err := os.Rename(loser, quarantinePath); err != nil {
				return "", err
			}
		case os.IsExist(err):
			d.log.WithField("file", quarantinePath).Debug("Quarantine name taken, deleting loser")
			if err := os.Remove(loser); err != nil {
				return "", err
			}
			deleted = true
		default:
			return "", err
		}
	}

	d.mu.Lock()
	d.records = append(d.records, DuplicateRecord{
		Kept: kept, Loser: loser, Size: size, Hash: hash, Deleted: deleted,
	})
	d.mu.Unlock()
	return kept, nil
}

// hashFile computes the md5 content hash under the global limiter.
func (d *DuplicateResolver) hashFile(ctx context.Context, path string) (string, error) {
	if err := d.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer d.limiter.Release()

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
