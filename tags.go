package main

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Tagger turns the words buried in picture paths into EXIF keywords.
// Folder and file names are the only place years of manual sorting
// survive; once files are rebucketed by month those words would be lost
// unless written into the pictures themselves.
type Tagger struct {
	settings Settings
	log      *logrus.Logger
	provider *FileProvider
	reader   MetaReader
	writer   MetaWriter
	limiter  *Limiter

	tags map[string]struct{}
}

// NewTagger creates a tagger with an empty vocabulary.
func NewTagger(settings Settings, log *logrus.Logger, provider *FileProvider,
	reader MetaReader, writer MetaWriter, limiter *Limiter) *Tagger {
	return &Tagger{
		settings: settings,
		log:      log,
		provider: provider,
		reader:   reader,
		writer:   writer,
		limiter:  limiter,
		tags:     map[string]struct{}{},
	}
}

// BuildTagList collects the candidate vocabulary from every picture path
// under root and returns its size. Runs before Apply; the map is
// read-only afterwards.
func (tg *Tagger) BuildTagList(root string) (int, error) {
	tg.log.WithField("directory", root).Info("Creating tag list from picture paths")
	items, err := tg.provider.ListFilesRecursive(root, Pictures, true)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		for _, word := range tg.wordsFor(item.Path, root) {
			tg.tags[word] = struct{}{}
		}
	}
	tg.log.WithField("count", len(tg.tags)).Debug("Collected tag words")
	return len(tg.tags), nil
}

// wordsFor extracts the tag-worthy words of one path: the part below
// root without the extension, letters only, lower-cased, with short and
// skip-listed words dropped.
func (tg *Tagger) wordsFor(path, root string) []string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))

	var b strings.Builder
	for _, r := range rel {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var words []string
	seen := map[string]struct{}{}
	for _, word := range strings.Fields(b.String()) {
		word = strings.ToLower(word)
		if len(word) <= 2 || containsString(tg.settings.TagSkipWords, word) {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	return words
}

// Apply writes each picture's path words into its keyword list, merged
// with whatever keywords are already there. Files whose keywords already
// cover the words are left untouched, so re-running is a no-op. Returns
// how many files were written.
func (tg *Tagger) Apply(ctx context.Context, root string) (int, error) {
	tg.log.WithField("directory", root).Info("Tagging pictures")
	items, err := tg.provider.ListFilesRecursive(root, Pictures, true)
	if err != nil {
		return 0, err
	}

	var tagged int64
	var wg sync.WaitGroup
	for _, item := range items {
		if item.Dir == tg.settings.InvalidFolderName {
			continue
		}
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tg.limiter.Acquire(ctx); err != nil {
				return
			}
			defer tg.limiter.Release()
			if tg.tagOne(item, root) {
				atomic.AddInt64(&tagged, 1)
			}
		}()
	}
	wg.Wait()
	return int(tagged), ctx.Err()
}

// tagOne merges one picture's relevant words into its keyword tag.
func (tg *Tagger) tagOne(item MediaItem, root string) bool {
	var relevant []string
	for _, word := range tg.wordsFor(item.Path, root) {
		if _, ok := tg.tags[word]; ok {
			relevant = append(relevant, word)
		}
	}
	if len(relevant) == 0 {
		return false
	}

	existing, _ := tg.reader.Keywords(item.Path)
	merged, changed := mergeKeywords(existing, relevant)
	if !changed {
		return false
	}
	if err := tg.writer.SetKeywords(item.Path, merged); err != nil {
		tg.log.WithError(err).WithField("file", item.Path).Warn("Unable to write keywords")
		return false
	}
	tg.log.WithFields(logrus.Fields{"file": item.Path, "tags": merged}).Trace("Wrote keywords")
	return true
}

// mergeKeywords unions new words into the existing list, keeping the
// existing entries first, and reports whether anything was added.
func mergeKeywords(existing, words []string) ([]string, bool) {
	seen := map[string]struct{}{}
	for _, keyword := range existing {
		seen[strings.ToLower(keyword)] = struct{}{}
	}
	merged := append([]string{}, existing...)
	added := false
	for _, word := range words {
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		merged = append(merged, word)
		added = true
	}
	return merged, added
}
