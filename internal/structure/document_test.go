package structure

import (
	"strings"
	"testing"
)

func TestParseTOCEntry(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantTitle string
		wantLevel int
		wantPage  int
		wantOK    bool
	}{
		{
			name:      "dotted numbering with leaders and page",
			line:      "1.2.3 Introduction ..... 42",
			wantTitle: "Introduction",
			wantLevel: 3,
			wantPage:  42,
			wantOK:    true,
		},
		{
			name:      "indentation fallback",
			line:      "    Introduction",
			wantTitle: "Introduction",
			wantLevel: 2,
			wantOK:    true,
		},
		{
			name:      "no numbering no indent",
			line:      "Overview",
			wantTitle: "Overview",
			wantLevel: 1,
			wantOK:    true,
		},
		{
			name:      "chapter prefix",
			line:      "Chapter 2 Methods .... 10",
			wantTitle: "Methods",
			wantLevel: 1,
			wantPage:  10,
			wantOK:    true,
		},
		{
			name:      "spaced page number",
			line:      "2.1 Results   17",
			wantTitle: "Results",
			wantLevel: 2,
			wantPage:  17,
			wantOK:    true,
		},
		{
			name:   "blank line",
			line:   "   ",
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry, ok := parseTOCEntry(tc.line)
			if ok != tc.wantOK {
				t.Fatalf("parseTOCEntry(%q) ok = %v, want %v", tc.line, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if entry.Title != tc.wantTitle {
				t.Errorf("title = %q, want %q", entry.Title, tc.wantTitle)
			}
			if entry.Level != tc.wantLevel {
				t.Errorf("level = %d, want %d", entry.Level, tc.wantLevel)
			}
			if entry.Page != tc.wantPage {
				t.Errorf("page = %d, want %d", entry.Page, tc.wantPage)
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "all caps first line",
			text: "PROJECT PHOENIX\nSome body text follows here.",
			want: "PROJECT PHOENIX",
		},
		{
			name: "explicit marker",
			text: "Preamble text first.\nTitle: Annual Report\nMore text.",
			want: "Annual Report",
		},
		{
			name: "short first paragraph before blank gap",
			text: "A modest proposal\n\nThe body starts here and keeps going.",
			want: "A modest proposal",
		},
		{
			name: "no candidate",
			text: "just a long lowercase opening line that flows directly into the body without any gap\nmore body\nand more",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractTitle(tc.text); got != tc.want {
				t.Errorf("extractTitle() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractMetadata(t *testing.T) {
	text := strings.Join([]string{
		"SECURITY HANDBOOK",
		"Author: Jane Doe",
		"Date: 2024-03-01",
		"Version: 2.1",
		"Organization: ACME Corp",
		"Classification: Internal",
		"Author: Someone Else", // first match per label wins
	}, "\n")

	metadata := extractMetadata(text)

	want := map[string]string{
		"author":         "Jane Doe",
		"date":           "2024-03-01",
		"version":        "2.1",
		"organization":   "ACME Corp",
		"classification": "Internal",
	}
	for key, value := range want {
		if metadata[key] != value {
			t.Errorf("metadata[%q] = %q, want %q", key, metadata[key], value)
		}
	}
}

// checkSectionLevels asserts every child's level is strictly greater than
// its parent's.
func checkSectionLevels(t *testing.T, sections []*DocumentSection, parentLevel int) {
	t.Helper()
	for _, s := range sections {
		if s.Level <= parentLevel {
			t.Errorf("section %q level %d not greater than parent level %d", s.Title, s.Level, parentLevel)
		}
		checkSectionLevels(t, s.Subsections, s.Level)
	}
}

func TestExtractDocumentWithTOC(t *testing.T) {
	text := strings.Join([]string{
		"PROJECT PHOENIX",
		"Author: Jane Doe",
		"",
		"Table of Contents",
		"1. Overview ..... 2",
		"1.1 Goals ..... 2",
		"2. Design ..... 3",
		"",
		"1. Overview",
		"Phoenix is a ground-up rewrite.",
		"1.1 Goals",
		"Ship fast without regressions.",
		"2. Design",
		"Strictly layered.",
	}, "\n")

	doc := ExtractDocument(text)

	if doc.Title != "PROJECT PHOENIX" {
		t.Errorf("title = %q, want PROJECT PHOENIX", doc.Title)
	}
	if doc.Metadata["author"] != "Jane Doe" {
		t.Errorf("author = %q, want Jane Doe", doc.Metadata["author"])
	}

	if len(doc.TOC) != 3 {
		t.Fatalf("TOC entries = %d, want 3", len(doc.TOC))
	}
	if doc.TOC[1].Title != "Goals" || doc.TOC[1].Level != 2 || doc.TOC[1].Page != 2 {
		t.Errorf("TOC[1] = %+v, want Goals/level 2/page 2", doc.TOC[1])
	}

	if len(doc.Sections) != 2 {
		t.Fatalf("top-level sections = %d, want 2", len(doc.Sections))
	}
	overview := doc.Sections[0]
	if overview.Title != "Overview" {
		t.Errorf("section 0 title = %q, want Overview", overview.Title)
	}
	if !strings.Contains(overview.Content, "ground-up rewrite") {
		t.Errorf("Overview content = %q, missing body text", overview.Content)
	}
	if len(overview.Subsections) != 1 || overview.Subsections[0].Title != "Goals" {
		t.Fatalf("Overview subsections = %+v, want [Goals]", overview.Subsections)
	}
	if !strings.Contains(overview.Subsections[0].Content, "Ship fast") {
		t.Errorf("Goals content = %q, missing body text", overview.Subsections[0].Content)
	}
	if doc.Sections[1].Title != "Design" || !strings.Contains(doc.Sections[1].Content, "Strictly layered") {
		t.Errorf("section 1 = %+v, want Design with body", doc.Sections[1])
	}

	checkSectionLevels(t, doc.Sections, 0)
}

func TestExtractDocumentHeadingFallback(t *testing.T) {
	text := strings.Join([]string{
		"CHAPTER 1",
		"Introduction",
		"This is the body.",
	}, "\n")

	doc := ExtractDocument(text)

	if doc.Title != "CHAPTER 1" {
		t.Errorf("title = %q, want CHAPTER 1", doc.Title)
	}
	if len(doc.TOC) != 0 {
		t.Errorf("TOC entries = %d, want 0", len(doc.TOC))
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(doc.Sections))
	}
	section := doc.Sections[0]
	if section.Title != "CHAPTER 1" {
		t.Errorf("section title = %q, want CHAPTER 1", section.Title)
	}
	if !strings.Contains(section.Content, "This is the body.") {
		t.Errorf("section content = %q, missing body", section.Content)
	}
	checkSectionLevels(t, doc.Sections, 0)
}

func TestExtractDocumentNestedHeadings(t *testing.T) {
	text := strings.Join([]string{
		"1. First",
		"alpha",
		"1.1 Inner",
		"beta",
		"1.1.1 Deepest",
		"gamma",
		"2. Second",
		"delta",
	}, "\n")

	doc := ExtractDocument(text)

	if len(doc.Sections) != 2 {
		t.Fatalf("top-level sections = %d, want 2", len(doc.Sections))
	}
	first := doc.Sections[0]
	if len(first.Subsections) != 1 || len(first.Subsections[0].Subsections) != 1 {
		t.Fatalf("nesting = %+v, want First > Inner > Deepest", first)
	}
	if first.Subsections[0].Subsections[0].Title != "1.1.1 Deepest" {
		t.Errorf("deepest title = %q", first.Subsections[0].Subsections[0].Title)
	}
	checkSectionLevels(t, doc.Sections, 0)
}

func TestExtractDocumentUnderlinedHeadings(t *testing.T) {
	text := strings.Join([]string{
		"Main Heading",
		"=====",
		"top content",
		"Sub Heading",
		"-----",
		"sub content",
	}, "\n")

	doc := ExtractDocument(text)

	if len(doc.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(doc.Sections))
	}
	main := doc.Sections[0]
	if main.Title != "Main Heading" || main.Level != 1 {
		t.Errorf("main = %q level %d, want Main Heading level 1", main.Title, main.Level)
	}
	if strings.Contains(main.Content, "=====") {
		t.Errorf("underline row leaked into content: %q", main.Content)
	}
	if len(main.Subsections) != 1 || main.Subsections[0].Title != "Sub Heading" {
		t.Fatalf("subsections = %+v, want [Sub Heading]", main.Subsections)
	}
	checkSectionLevels(t, doc.Sections, 0)
}

func TestExtractDocumentNoHeadings(t *testing.T) {
	text := "just some plain body text\nwith no structure at all"

	doc := ExtractDocument(text)

	if len(doc.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(doc.Sections))
	}
	if doc.Sections[0].Title != "Document" {
		t.Errorf("fallback section title = %q, want Document", doc.Sections[0].Title)
	}
	if doc.Sections[0].Content != text {
		t.Errorf("fallback content = %q, want full text", doc.Sections[0].Content)
	}
}

func TestExtractFromTextsJoinsPages(t *testing.T) {
	doc := ExtractFromTexts([]string{
		"1. First\npage one body",
		"2. Second\npage two body",
	})

	if len(doc.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(doc.Sections))
	}
	if doc.Sections[1].Title != "2. Second" {
		t.Errorf("section 1 title = %q, want 2. Second", doc.Sections[1].Title)
	}
}
