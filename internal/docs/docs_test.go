package docs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	gdocs "google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"

	"github.com/loqalabs/loqa-reader/internal/apperr"
)

func text(content string, style *gdocs.TextStyle) *gdocs.ParagraphElement {
	return &gdocs.ParagraphElement{TextRun: &gdocs.TextRun{Content: content, TextStyle: style}}
}

func paragraph(named string, elements ...*gdocs.ParagraphElement) *gdocs.StructuralElement {
	return &gdocs.StructuralElement{Paragraph: &gdocs.Paragraph{
		Elements:       elements,
		ParagraphStyle: &gdocs.ParagraphStyle{NamedStyleType: named},
	}}
}

func heading(s string) *gdocs.StructuralElement  { return paragraph(styleHeading1, text(s+"\n", nil)) }
func subtitle(s string) *gdocs.StructuralElement { return paragraph(styleSubtitle, text(s+"\n", nil)) }
func body(s string) *gdocs.StructuralElement     { return paragraph("NORMAL_TEXT", text(s+"\n", nil)) }

func TestRenderParagraphFormatting(t *testing.T) {
	got := RenderHTML([]*gdocs.StructuralElement{paragraph("NORMAL_TEXT",
		text("Plain ", nil),
		text("bold", &gdocs.TextStyle{Bold: true}),
		text(" and ", nil),
		text("all", &gdocs.TextStyle{Bold: true, Italic: true, Underline: true}),
		text(" a<b & c\n", nil),
	)})
	want := "<p>Plain <strong>bold</strong> and <u><em><strong>all</strong></em></u> a&lt;b &amp; c<br></p>"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRenderLineBreaksAndRules(t *testing.T) {
	tests := []struct {
		name string
		el   *gdocs.StructuralElement
		want string
	}{
		{name: "soft breaks", el: paragraph("", text("one\vtwo\u0085three\n", nil)), want: "<p>one<br>two<br>three<br></p>"},
		{name: "blank line", el: paragraph("", text("\n", nil)), want: "<p><br></p>"},
		{name: "rule", el: paragraph("", &gdocs.ParagraphElement{HorizontalRule: &gdocs.HorizontalRule{}}, text("\n", nil)), want: "<p><hr><br></p>"},
		{name: "empty", el: paragraph("", text("  ", nil)), want: "<p></p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderHTML([]*gdocs.StructuralElement{tt.el}); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRenderTableFlattensCells(t *testing.T) {
	table := &gdocs.StructuralElement{Table: &gdocs.Table{TableRows: []*gdocs.TableRow{
		{TableCells: []*gdocs.TableCell{
			{Content: []*gdocs.StructuralElement{body("a")}},
			{Content: []*gdocs.StructuralElement{body("b")}},
		}},
	}}}
	want := "<table><tr><td><p>a<br></p></td><td><p>b<br></p></td></tr></table>\n"
	if got := RenderHTML([]*gdocs.StructuralElement{table, {SectionBreak: &gdocs.SectionBreak{}}}); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBuildLibraryFromTabs(t *testing.T) {
	doc := &gdocs.Document{
		Title: "Saga",
		Tabs: []*gdocs.Tab{
			{
				TabProperties: &gdocs.TabProperties{TabId: "t.0", Title: "Book One"},
				DocumentTab: &gdocs.DocumentTab{Body: &gdocs.Body{Content: []*gdocs.StructuralElement{
					body("Foreword."),
					heading("1"),
					subtitle("The Beginning"),
					body("It was dark."),
					subtitle("An aside"),
					heading("2"),
					body("Morning."),
				}}},
			},
			{
				TabProperties: &gdocs.TabProperties{TabId: "t.1", Title: "Notes"},
				DocumentTab:   &gdocs.DocumentTab{Body: &gdocs.Body{}},
			},
			{DocumentTab: &gdocs.DocumentTab{Body: &gdocs.Body{Content: []*gdocs.StructuralElement{heading("I")}}}},
		},
	}

	lib := BuildLibrary("doc-1", doc)
	if lib.Title != "Saga" || lib.DocumentID != "doc-1" {
		t.Fatalf("unexpected library header %+v", lib)
	}
	if len(lib.Books) != 2 {
		t.Fatalf("expected empty tab to be dropped, got %d books", len(lib.Books))
	}

	book := lib.Books[0]
	if book.ID != "tab-t_0" || book.Title != "Book One" {
		t.Fatalf("unexpected book %+v", book)
	}
	want := []Chapter{
		{ID: "chapter-tab-t_0-1", Number: "0", Title: "Introduction", Content: "<p>Foreword.<br></p>"},
		{ID: "chapter-tab-t_0-2", Number: "1", Title: "The Beginning", Content: "<p>It was dark.<br></p><p>An aside<br></p>"},
		{ID: "chapter-tab-t_0-3", Number: "2", Title: "", Content: "<p>Morning.<br></p>"},
	}
	if len(book.Chapters) != len(want) {
		t.Fatalf("expected %d chapters, got %+v", len(want), book.Chapters)
	}
	for i := range want {
		if book.Chapters[i] != want[i] {
			t.Fatalf("chapter %d: expected %+v, got %+v", i, want[i], book.Chapters[i])
		}
	}

	unnamed := lib.Books[1]
	if unnamed.ID != "tab-tab_3" || unnamed.Title != "Tab 3" {
		t.Fatalf("unexpected fallback book %+v", unnamed)
	}
}

func TestBuildLibraryWithoutTabs(t *testing.T) {
	lib := BuildLibrary("doc-2", &gdocs.Document{Body: &gdocs.Body{Content: []*gdocs.StructuralElement{
		heading("Prologue"),
		body("Once."),
	}}})
	if lib.Title != "Untitled Document" {
		t.Fatalf("expected default title, got %q", lib.Title)
	}
	if len(lib.Books) != 1 || lib.Books[0].ID != "book-main" || lib.Books[0].Title != "Main Document" {
		t.Fatalf("unexpected books %+v", lib.Books)
	}
	ch := lib.Books[0].Chapters
	if len(ch) != 1 || ch[0].ID != "chapter-main-1" || ch[0].Number != "Prologue" {
		t.Fatalf("unexpected chapters %+v", ch)
	}
}

func TestBuildLibraryEmptyDocument(t *testing.T) {
	lib := BuildLibrary("doc-3", &gdocs.Document{Title: "Blank"})
	if lib.Books == nil || len(lib.Books) != 0 {
		t.Fatalf("expected empty non-nil books, got %#v", lib.Books)
	}
}

type stubFetcher struct {
	doc   *gdocs.Document
	err   error
	asked []string
}

func (s *stubFetcher) Document(_ context.Context, id string) (*gdocs.Document, error) {
	s.asked = append(s.asked, id)
	return s.doc, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceUsesDefaultDocument(t *testing.T) {
	fetcher := &stubFetcher{doc: &gdocs.Document{Title: "T", Body: &gdocs.Body{Content: []*gdocs.StructuralElement{body("x")}}}}
	svc := NewService(fetcher, "default-doc", quietLogger())

	lib, err := svc.Library(context.Background(), "")
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	if lib.DocumentID != "default-doc" || fetcher.asked[0] != "default-doc" {
		t.Fatalf("expected default document, got %q", lib.DocumentID)
	}
	if _, err := svc.Library(context.Background(), "other"); err != nil || fetcher.asked[1] != "other" {
		t.Fatalf("expected explicit id to win: %v %v", err, fetcher.asked)
	}
}

func TestServiceRequiresDocumentID(t *testing.T) {
	svc := NewService(&stubFetcher{}, "", quietLogger())
	if _, err := svc.Library(context.Background(), ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{name: "not found", err: &googleapi.Error{Code: http.StatusNotFound, Message: "missing"}, kind: apperr.KindNotFound},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}, kind: apperr.KindUpstream},
		{name: "transport", err: errors.New("dial tcp: refused"), kind: apperr.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapAPIError("doc", tt.err)
			if !apperr.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected cause to be preserved")
			}
		})
	}
}
