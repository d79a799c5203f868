package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MediaCopier classifies source media into destination buckets and copies
// it into date folders. Routing never blocks on a bad file: unreadable
// pictures land in the invalid-media bucket, video bytes hiding behind a
// picture extension land with the videos.
type MediaCopier struct {
	settings Settings
	log      *logrus.Logger
	provider *FileProvider
	resolver *DateResolver
	namer    *FileNamer
	reader   MetaReader
	writer   MetaWriter
	limiter  *Limiter
	runData  *RunDataTracker
	DryRun   bool
}

// NewMediaCopier wires the copy pipeline.
func NewMediaCopier(settings Settings, log *logrus.Logger, provider *FileProvider,
	resolver *DateResolver, namer *FileNamer, reader MetaReader, writer MetaWriter,
	limiter *Limiter, runData *RunDataTracker) *MediaCopier {
	return &MediaCopier{
		settings: settings,
		log:      log,
		provider: provider,
		resolver: resolver,
		namer:    namer,
		reader:   reader,
		writer:   writer,
		limiter:  limiter,
		runData:  runData,
	}
}

// CopyStats summarises one copy pass.
type CopyStats struct {
	Pictures int
	Videos   int
	Invalid  int
	WhatsApp int
	Failed   int
	mu       sync.Mutex
}

func (s *CopyStats) count(bucket string, settings Settings, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failed {
		s.Failed++
		return
	}
	switch bucket {
	case settings.VideosFolderName:
		s.Videos++
	case settings.InvalidFolderName:
		s.Invalid++
	case settings.WhatsAppFolderName:
		s.WhatsApp++
	default:
		s.Pictures++
	}
}

// Copy ingests one source tree into the target root. Per-file failures
// are logged and contained; only enumeration failures propagate.
func (c *MediaCopier) Copy(ctx context.Context, from, to string) (*CopyStats, error) {
	c.log.WithField("source", from).Info("Processing source tree")

	videos, err := c.provider.ListFilesRecursive(from, Videos, false)
	if err != nil {
		return nil, err
	}
	pictures, err := c.provider.ListFilesRecursive(from, Pictures, false)
	if err != nil {
		return nil, err
	}

	stats := &CopyStats{}
	progress := NewProgressTracker(len(videos) + len(pictures))
	fmt.Printf("📂 %s: %d pictures, %d videos\n", from, len(pictures), len(videos))

	var wg sync.WaitGroup
	run := func(item MediaItem, copyOne func(MediaItem, string) (string, error)) {
		defer wg.Done()
		if err := c.limiter.Acquire(ctx); err != nil {
			progress.Skip()
			return
		}
		defer c.limiter.Release()

		bucket, err := copyOne(item, to)
		if err != nil {
			c.log.WithError(err).WithField("file", item.Path).Error("Unable to copy file")
		}
		stats.count(bucket, c.settings, err != nil)
		progress.Update(err == nil)
	}

	for _, item := range videos {
		wg.Add(1)
		go run(item, c.copyOneVideo)
	}
	for _, item := range pictures {
		wg.Add(1)
		go run(item, c.copyOnePicture)
	}
	wg.Wait()

	c.recordManifest(videos, Videos)
	c.recordManifest(pictures, Pictures)

	fmt.Printf("✅ %s\n", progress.FormatProgress())
	return stats, ctx.Err()
}

// recordManifest groups processed items by their source directory and
// feeds them to the run tracker.
func (c *MediaCopier) recordManifest(items []MediaItem, mediaType MediaType) {
	if c.runData == nil {
		return
	}
	byDir := map[string][]MediaItem{}
	for _, item := range items {
		dir := filepath.Dir(item.Path)
		byDir[dir] = append(byDir[dir], item)
	}
	for dir, files := range byDir {
		c.runData.Add(files, dir, mediaType)
	}
}

// copyOnePicture routes one picture: read the embedded date, resolve a
// capture date through the chain, pick a bucket, copy, and back-fill the
// inferred date into the copy when the tag was missing.
func (c *MediaCopier) copyOnePicture(item MediaItem, to string) (string, error) {
	embedded, status := c.reader.CapturedDate(item.Path)

	switch status {
	case MetaInvalidFormat:
		// Not salvageable as an image; park it for manual review.
		return c.settings.InvalidFolderName,
			c.copyInto(item, filepath.Join(to, c.settings.InvalidFolderName))
	case MetaNotAnImage:
		c.log.WithField("file", item.Name).Debug("Picture extension over video bytes, routing to videos")
		return c.copyOneVideo(item, to)
	}

	candidate, resolved := c.resolver.Resolve(item.Name, item.Dir, embedded)
	bucket := c.settings.PicturesFolderName
	if isWhatsAppName(item.Name) {
		bucket = c.settings.WhatsAppFolderName
	}

	var captureTime time.Time
	if resolved {
		captureTime = candidate.Time
	}
	destDir := filepath.Join(to, bucket, c.namer.MakeDirectoryName(captureTime))
	if err := c.copyInto(item, destDir); err != nil {
		return bucket, err
	}

	// A date inferred from the name is worth persisting so every later
	// pass (and every other tool) sees it in the tag.
	if resolved && candidate.Source != SourceEmbedded && !c.DryRun {
		destPath := filepath.Join(destDir, c.namer.DestinationFileName(item))
		if err := c.writer.SetCapturedDate(destPath, candidate.Time); err != nil {
			c.log.WithError(err).WithField("file", destPath).Warn("Unable to write inferred date")
		}
	}
	return bucket, nil
}

// copyOneVideo routes one video into its date folder. Videos carry no
// readable tag here, so the date comes from the name or parent folder.
func (c *MediaCopier) copyOneVideo(item MediaItem, to string) (string, error) {
	bucket := c.settings.VideosFolderName
	if isWhatsAppName(item.Name) {
		bucket = c.settings.WhatsAppFolderName
	}
	var captureTime time.Time
	if candidate, ok := c.resolver.Resolve(item.Name, item.Dir, time.Time{}); ok {
		captureTime = candidate.Time
	}
	destDir := filepath.Join(to, bucket, c.namer.MakeDirectoryName(captureTime))
	return bucket, c.copyInto(item, destDir)
}

// copyInto copies the item into destDir under its cleaned destination
// name, creating the directory on first use.
func (c *MediaCopier) copyInto(item MediaItem, destDir string) error {
	destPath := filepath.Join(destDir, c.namer.DestinationFileName(item))
	if c.DryRun {
		fmt.Printf("🔍 [DRY RUN] %s -> %s\n", item.Path, destPath)
		return nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", destDir)
	}
	return copyFile(item.Path, destPath)
}

// copyFile copies src to dst, preserving the source modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return nil
}
