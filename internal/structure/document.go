/**
 * Document structure extractor
 *
 * Recovers title, labeled metadata, a table of contents, and a nested
 * section tree from the concatenated recognized text of one or more pages.
 * Four independent sub-extractions run over the full text; the TOC, when
 * present, bootstraps section-boundary detection and heading-pattern
 * scanning is the fallback.
 */

package structure

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/docuflow/ocr-worker/internal/ocr"
)

// PageSeparator joins per-page texts before structure extraction.
const PageSeparator = "\n\n-----\n\n"

// TOCEntry is one scanned table-of-contents line. Page is 0 when the entry
// carries no page number.
type TOCEntry struct {
	Title string `json:"title"`
	Level int    `json:"level"`
	Page  int    `json:"page,omitempty"`
}

// DocumentSection is a node of the recovered section tree. Levels strictly
// increase down any path.
type DocumentSection struct {
	Title       string             `json:"title"`
	Level       int                `json:"level"`
	Content     string             `json:"content"`
	Bounds      *ocr.BoundingBox   `json:"bounds,omitempty"`
	Subsections []*DocumentSection `json:"subsections,omitempty"`
}

// StructuredDocument is the outline recovered for one logical document.
type StructuredDocument struct {
	Title    string             `json:"title,omitempty"`
	Sections []*DocumentSection `json:"sections"`
	Metadata map[string]string  `json:"metadata"`
	TOC      []TOCEntry         `json:"toc,omitempty"`
}

var (
	titleMarkerRe = regexp.MustCompile(`(?im)^\s*(?:title|subject|document name)\s*:\s*(.+)$`)

	tocHeadingRe     = regexp.MustCompile(`(?i)^\s*(?:table of contents|contents|index)\s*:?\s*$`)
	chapterPrefixRe  = regexp.MustCompile(`(?i)^(?:chapter|section)\s+`)
	tocNumberingRe   = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+`)
	tocLeaderPageRe  = regexp.MustCompile(`\s*\.{2,}\s*(\d+)\s*$`)
	tocSpacedPageRe  = regexp.MustCompile(`\s{2,}(\d+)\s*$`)
	chapterHeadingRe = regexp.MustCompile(`(?i)^chapter\s+\d+\b`)
	underlineRe      = regexp.MustCompile(`^\s*(={3,}|-{3,})\s*$`)
)

// metadataFields is the fixed ordered list of labeled-field patterns. First
// match per label wins.
var metadataFields = []struct {
	Key     string
	Pattern *regexp.Regexp
}{
	{"author", regexp.MustCompile(`(?im)^\s*author\s*:\s*(.+?)\s*$`)},
	{"date", regexp.MustCompile(`(?im)^\s*date\s*:\s*(.+?)\s*$`)},
	{"version", regexp.MustCompile(`(?im)^\s*version\s*:\s*(.+?)\s*$`)},
	{"organization", regexp.MustCompile(`(?im)^\s*organization\s*:\s*(.+?)\s*$`)},
	{"classification", regexp.MustCompile(`(?im)^\s*classification\s*:\s*(.+?)\s*$`)},
}

// ExtractFromTexts joins per-page texts with the page separator and extracts
// document structure from the whole.
func ExtractFromTexts(texts []string) *StructuredDocument {
	return ExtractDocument(strings.Join(texts, PageSeparator))
}

// ExtractDocument recovers title, metadata, TOC and sections from text.
func ExtractDocument(text string) *StructuredDocument {
	toc, bodyFrom := extractTOC(text)

	var sections []*DocumentSection
	if len(toc) > 0 {
		sections = buildTOCSections(text, toc, bodyFrom)
	} else {
		sections = sectionsFromHeadings(text)
	}
	if len(sections) == 0 {
		content := strings.TrimSpace(text)
		if content != "" {
			sections = []*DocumentSection{{Title: "Document", Level: 1, Content: content}}
		}
	}

	return &StructuredDocument{
		Title:    extractTitle(text),
		Sections: sections,
		Metadata: extractMetadata(text),
		TOC:      toc,
	}
}

// extractTitle tries, in order: a short all-caps first line, an explicit
// title marker, a short first paragraph followed by a blank-line gap.
// Absence of any match yields no title; that is not an error.
func extractTitle(text string) string {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if len(line) < 100 && isAllUpper(line) {
			return line
		}
		break
	}

	if m := titleMarkerRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	paragraphs := strings.SplitN(strings.TrimLeft(text, "\n"), "\n\n", 2)
	if len(paragraphs) == 2 {
		first := strings.TrimSpace(paragraphs[0])
		if first != "" && len(first) < 100 && !strings.Contains(first, "\n") {
			return first
		}
	}

	return ""
}

func extractMetadata(text string) map[string]string {
	metadata := make(map[string]string)
	for _, field := range metadataFields {
		if m := field.Pattern.FindStringSubmatch(text); m != nil {
			metadata[field.Key] = strings.TrimSpace(m[1])
		}
	}
	return metadata
}

// extractTOC locates a "Table of Contents"-style heading and parses the
// entry lines that follow it. It also returns the byte offset just past the
// TOC block so section lookup skips the TOC's own copies of the titles.
func extractTOC(text string) ([]TOCEntry, int) {
	lines := strings.Split(text, "\n")

	// Byte offset of each line start.
	offsets := make([]int, len(lines)+1)
	for i, line := range lines {
		offsets[i+1] = offsets[i] + len(line) + 1
	}

	heading := -1
	for i, line := range lines {
		if tocHeadingRe.MatchString(line) {
			heading = i
			break
		}
	}
	if heading < 0 {
		return nil, 0
	}

	var entries []TOCEntry
	end := len(lines)
	for i := heading + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			if len(entries) == 0 {
				continue // gap between the heading and the first entry
			}
			end = i
			break
		}
		entry, ok := parseTOCEntry(lines[i])
		if !ok {
			end = i
			break
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	return entries, offsets[end]
}

// parseTOCEntry parses one TOC line. The pattern is permissive: optional
// "Chapter"/"Section" numbering, dot leaders, trailing page number. Nesting
// level comes from the numbering's dot count ("1.2.3" -> 3); without
// numbering it is estimated from indentation, one level per 2 spaces,
// minimum 1.
func parseTOCEntry(line string) (TOCEntry, bool) {
	if strings.TrimSpace(line) == "" {
		return TOCEntry{}, false
	}

	indent := 0
	for _, r := range line {
		if r == ' ' {
			indent++
		} else if r == '\t' {
			indent += 2
		} else {
			break
		}
	}

	s := strings.TrimSpace(line)
	s = chapterPrefixRe.ReplaceAllString(s, "")

	level := 0
	if m := tocNumberingRe.FindStringSubmatch(s); m != nil {
		level = strings.Count(m[1], ".") + 1
		s = s[len(m[0]):]
	}

	page := 0
	if loc := tocLeaderPageRe.FindStringSubmatchIndex(s); loc != nil {
		page, _ = strconv.Atoi(s[loc[2]:loc[3]])
		s = s[:loc[0]]
	} else if loc := tocSpacedPageRe.FindStringSubmatchIndex(s); loc != nil {
		page, _ = strconv.Atoi(s[loc[2]:loc[3]])
		s = s[:loc[0]]
	}

	title := strings.TrimSpace(strings.TrimRight(s, " ."))
	if title == "" {
		return TOCEntry{}, false
	}

	if level == 0 {
		level = indent / 2
		if level < 1 {
			level = 1
		}
	}

	return TOCEntry{Title: title, Level: level, Page: page}, true
}

// buildTOCSections derives section boundaries by locating each TOC title in
// the body text and taking the span up to the next heading-like line.
// Subsections are the TOC entries between an entry and the next entry at the
// same or shallower level.
func buildTOCSections(text string, entries []TOCEntry, from int) []*DocumentSection {
	var sections []*DocumentSection

	i := 0
	for i < len(entries) {
		entry := entries[i]
		j := i + 1
		for j < len(entries) && entries[j].Level > entry.Level {
			j++
		}

		section := &DocumentSection{Title: entry.Title, Level: entry.Level}
		childFrom := from
		if pos := indexFrom(text, entry.Title, from); pos >= 0 {
			bodyStart := pos + len(entry.Title)
			section.Content = strings.TrimSpace(text[bodyStart:nextHeadingIndex(text, bodyStart)])
			childFrom = bodyStart
		}
		section.Subsections = buildTOCSections(text, entries[i+1:j], childFrom)

		sections = append(sections, section)
		i = j
	}

	return sections
}

// sectionsFromHeadings scans the whole text for heading patterns and nests
// sections with an explicit stack of open sections per level.
func sectionsFromHeadings(text string) []*DocumentSection {
	lines := strings.Split(text, "\n")

	var roots []*DocumentSection
	var stack []*DocumentSection
	content := make(map[*DocumentSection][]string)

	for i := 0; i < len(lines); i++ {
		next := ""
		if i+1 < len(lines) {
			next = lines[i+1]
		}

		title, level, underlined := headingLine(lines[i], next)
		if title == "" {
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				content[top] = append(content[top], lines[i])
			}
			continue
		}
		if underlined {
			i++ // consume the underline row
		}

		section := &DocumentSection{Title: title, Level: level}
		for len(stack) > 0 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, section)
		} else {
			parent := stack[len(stack)-1]
			parent.Subsections = append(parent.Subsections, section)
		}
		stack = append(stack, section)
	}

	var finalize func(sections []*DocumentSection)
	finalize = func(sections []*DocumentSection) {
		for _, s := range sections {
			s.Content = strings.TrimSpace(strings.Join(content[s], "\n"))
			finalize(s.Subsections)
		}
	}
	finalize(roots)

	return roots
}

// headingLine reports whether line is heading-like: an explicit chapter
// heading, a numbered heading, an all-caps line, or a line underlined by the
// following row. Returns the heading title, its level, and whether the next
// row is the underline.
func headingLine(line, next string) (title string, level int, underlined bool) {
	t := strings.TrimSpace(line)
	if t == "" || len(t) >= 100 {
		return "", 0, false
	}
	if underlineRe.MatchString(t) {
		return "", 0, false
	}

	if chapterHeadingRe.MatchString(t) {
		return t, 1, false
	}

	if m := tocNumberingRe.FindStringSubmatch(t); m != nil {
		if rest := strings.TrimSpace(t[len(m[0]):]); rest != "" {
			return t, strings.Count(m[1], ".") + 1, false
		}
	}

	if isAllUpper(t) {
		return t, 1, false
	}

	if u := underlineRe.FindStringSubmatch(strings.TrimSpace(next)); u != nil {
		level := 1
		if strings.HasPrefix(u[1], "-") {
			level = 2
		}
		return t, level, true
	}

	return "", 0, false
}

// nextHeadingIndex returns the byte index of the first heading-like line
// strictly after the line containing from, or len(text).
func nextHeadingIndex(text string, from int) int {
	if from >= len(text) {
		return len(text)
	}
	nl := strings.IndexByte(text[from:], '\n')
	if nl < 0 {
		return len(text)
	}

	pos := from + nl + 1
	for pos < len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var line, next string
		if lineEnd < 0 {
			line = text[pos:]
			lineEnd = len(text) - pos
		} else {
			line = text[pos : pos+lineEnd]
			rest := text[pos+lineEnd+1:]
			if n := strings.IndexByte(rest, '\n'); n >= 0 {
				next = rest[:n]
			} else {
				next = rest
			}
		}

		if title, _, _ := headingLine(line, next); title != "" {
			return pos
		}
		pos += lineEnd + 1
	}
	return len(text)
}

func indexFrom(text, sub string, from int) int {
	if from < 0 || from > len(text) {
		from = 0
	}
	if i := strings.Index(text[from:], sub); i >= 0 {
		return from + i
	}
	return strings.Index(text, sub)
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}
