package main

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DateSource tags where a resolved capture date came from.
type DateSource string

const (
	SourceEmbedded     DateSource = "embedded"
	SourceFileName     DateSource = "filename"
	SourceParentFolder DateSource = "parentFolder"
	SourceNLPFallback  DateSource = "nlpFallback"
)

// DateCandidate is a resolved capture date plus its provenance.
type DateCandidate struct {
	Time   time.Time
	Source DateSource
}

// resolveInput is everything a single resolution attempt may look at.
type resolveInput struct {
	name      string
	parentDir string
	embedded  time.Time
}

// resolverStrategy is one step of the resolution chain. The chain is an
// ordered slice evaluated front to back; the first strategy returning a
// valid candidate wins.
type resolverStrategy struct {
	name string
	fn   func(in resolveInput) (DateCandidate, bool)
}

// whatsappPattern matches the messaging-app export convention, with the
// eight-digit capture date as the only group.
var whatsappPattern = regexp.MustCompile(`(?:IMG|VID)-([0-9]{8})-WA[0-9]{4}`)

// DateResolver infers a capture date from a file name, its parent folder
// name and an optional embedded timestamp.
type DateResolver struct {
	settings   Settings
	log        *logrus.Logger
	strategies []resolverStrategy
	now        func() time.Time
}

// NewDateResolver builds the resolver with its strategy chain in priority
// order: embedded tag, literal name formats, free-text name parsing, then
// the same two passes over the parent folder name.
func NewDateResolver(settings Settings, log *logrus.Logger) *DateResolver {
	r := &DateResolver{settings: settings, log: log, now: time.Now}
	r.strategies = []resolverStrategy{
		{"embedded", r.fromEmbedded},
		{"filename-formats", r.fromNameFormats},
		{"filename-text", r.fromNameText},
		{"parent-folder", r.fromParentFolder},
	}
	return r
}

// Valid is the single source of truth for candidate validity: a non-zero
// time whose year lies within [LibraryStartYear, current year]. Every
// caller that needs the threshold goes through here.
func (r *DateResolver) Valid(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	year := t.Year()
	return year >= r.settings.LibraryStartYear && year <= r.now().Year()
}

// Resolve runs the strategy chain and returns the first valid candidate.
// The boolean is false when no source produced a usable date.
func (r *DateResolver) Resolve(name, parentFolderName string, embedded time.Time) (DateCandidate, bool) {
	in := resolveInput{name: name, parentDir: parentFolderName, embedded: embedded}
	for _, strategy := range r.strategies {
		if candidate, ok := strategy.fn(in); ok && r.Valid(candidate.Time) {
			r.log.WithFields(logrus.Fields{
				"file":     name,
				"strategy": strategy.name,
				"date":     candidate.Time.Format("2006-01-02 15:04:05"),
			}).Debug("Inferred capture date")
			return candidate, true
		}
	}
	return DateCandidate{}, false
}

// fromEmbedded trusts the embedded tag unless the file came from a bulk
// scanned import, whose tags carry the scan date rather than the capture
// date.
func (r *DateResolver) fromEmbedded(in resolveInput) (DateCandidate, bool) {
	if !r.Valid(in.embedded) {
		return DateCandidate{}, false
	}
	if r.settings.ScannedDirHint != "" &&
		strings.Contains(strings.ToLower(in.parentDir), strings.ToLower(r.settings.ScannedDirHint)) {
		return DateCandidate{}, false
	}
	return DateCandidate{Time: in.embedded, Source: SourceEmbedded}, true
}

// fromNameFormats tries the WhatsApp convention and then the literal
// layout list against the cleaned base name.
func (r *DateResolver) fromNameFormats(in resolveInput) (DateCandidate, bool) {
	base := stripExtension(in.name)
	if isUUIDName(base) {
		// Machine-generated identifier, nothing date-like to find.
		return DateCandidate{}, false
	}
	if t, ok := parseWhatsAppName(in.name); ok {
		return DateCandidate{Time: t, Source: SourceFileName}, true
	}
	if t, ok := r.parseKnownFormats(base); ok {
		return DateCandidate{Time: t, Source: SourceFileName}, true
	}
	return DateCandidate{}, false
}

// fromNameText is the free-text fallback over the base name.
func (r *DateResolver) fromNameText(in resolveInput) (DateCandidate, bool) {
	base := stripExtension(in.name)
	if isUUIDName(base) {
		return DateCandidate{}, false
	}
	if t, ok := r.parseFreeText(base); ok {
		return DateCandidate{Time: t, Source: SourceNLPFallback}, true
	}
	return DateCandidate{}, false
}

// fromParentFolder repeats the literal and free-text passes using the
// parent folder name as input.
func (r *DateResolver) fromParentFolder(in resolveInput) (DateCandidate, bool) {
	if in.parentDir == "" || isUUIDName(in.parentDir) {
		return DateCandidate{}, false
	}
	if t, ok := r.parseKnownFormats(in.parentDir); ok {
		return DateCandidate{Time: t, Source: SourceParentFolder}, true
	}
	if t, ok := r.parseFreeText(in.parentDir); ok {
		return DateCandidate{Time: t, Source: SourceParentFolder}, true
	}
	return DateCandidate{}, false
}

// parseKnownFormats matches the cleaned input against the configured
// layouts, then retries on the leading underscore-delimited segments to
// cope with trailing free-text suffixes.
func (r *DateResolver) parseKnownFormats(input string) (time.Time, bool) {
	cleaned := keepDateRunes(input)
	if cleaned == "" {
		return time.Time{}, false
	}
	for _, layout := range r.settings.KnownNameFormats {
		if t, err := time.Parse(layout, cleaned); err == nil && !t.IsZero() {
			return t, true
		}
	}

	// Retry with dashes collapsed to underscores, matching only the
	// leading one or two segments.
	collapsed := strings.ReplaceAll(cleaned, "-", "_")
	var segments []string
	for _, segment := range strings.Split(collapsed, "_") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	var attempts []string
	if len(segments) >= 2 {
		attempts = append(attempts, segments[0]+"_"+segments[1])
	}
	if len(segments) >= 1 {
		attempts = append(attempts, segments[0])
	}
	for _, attempt := range attempts {
		for _, layout := range r.settings.KnownNameFormats {
			if t, err := time.Parse(layout, attempt); err == nil && !t.IsZero() {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// parseFreeText extracts a date from human-written text such as
// "Photo on 10-22-17 at 6.29 PM". The whole string is tried first, then
// each whitespace token; the first hit that is valid and not in the
// future wins.
func (r *DateResolver) parseFreeText(text string) (time.Time, bool) {
	candidates := append([]string{text}, strings.Fields(text)...)
	for _, candidate := range candidates {
		t, err := dateparse.ParseAny(candidate)
		if err != nil {
			continue
		}
		if r.Valid(t) && t.Before(r.now()) {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseWhatsAppName extracts the capture date from an IMG-yyyyMMdd-WA####
// style name.
func parseWhatsAppName(name string) (time.Time, bool) {
	matches := whatsappPattern.FindStringSubmatch(name)
	if matches == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", matches[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// isWhatsAppName reports whether the name follows the messaging-app
// export convention.
func isWhatsAppName(name string) bool {
	return whatsappPattern.MatchString(name)
}

// isUUIDName reports whether s is a bare v4-style unique identifier.
func isUUIDName(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// stripExtension drops everything from the last dot onward.
func stripExtension(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}

// keepDateRunes removes every rune except digits, underscore and dash.
func keepDateRunes(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
