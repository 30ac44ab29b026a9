package docs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gdocs "google.golang.org/api/docs/v1"

	"github.com/loqalabs/loqa-reader/internal/apperr"
)

const (
	styleHeading1 = "HEADING_1"
	styleSubtitle = "SUBTITLE"
)

// Library is a document reshaped into books and chapters.
type Library struct {
	Title      string `json:"title"`
	DocumentID string `json:"document_id"`
	Books      []Book `json:"books"`
}

type Book struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter holds the HTML of everything between one HEADING_1 and the next.
// Number is the heading text; content before the first heading becomes
// chapter "0" titled Introduction.
type Chapter struct {
	ID      string `json:"id"`
	Number  string `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BuildLibrary reshapes a document fetched with tab content. Each tab is a
// book; a document without tabs is a single book. Books that end up with
// no chapters are dropped.
func BuildLibrary(id string, doc *gdocs.Document) Library {
	lib := Library{Title: doc.Title, DocumentID: id, Books: []Book{}}
	if lib.Title == "" {
		lib.Title = "Untitled Document"
	}

	var books []Book
	if len(doc.Tabs) > 0 {
		for i, tab := range doc.Tabs {
			if tab == nil {
				continue
			}
			title := fmt.Sprintf("Tab %d", i+1)
			tabID := fmt.Sprintf("tab_%d", i+1)
			if props := tab.TabProperties; props != nil {
				if props.Title != "" {
					title = props.Title
				}
				if props.TabId != "" {
					tabID = props.TabId
				}
			}
			bookID := "tab-" + strings.ReplaceAll(tabID, ".", "_")
			var content []*gdocs.StructuralElement
			if tab.DocumentTab != nil && tab.DocumentTab.Body != nil {
				content = tab.DocumentTab.Body.Content
			}
			books = append(books, Book{
				ID:       bookID,
				Title:    title,
				Chapters: splitChapters("chapter-"+bookID, content),
			})
		}
	} else {
		title := doc.Title
		if title == "" {
			title = "Main Document"
		}
		var content []*gdocs.StructuralElement
		if doc.Body != nil {
			content = doc.Body.Content
		}
		books = append(books, Book{ID: "book-main", Title: title, Chapters: splitChapters("chapter-main", content)})
	}

	for _, b := range books {
		if len(b.Chapters) > 0 {
			lib.Books = append(lib.Books, b)
		}
	}
	return lib
}

func splitChapters(idPrefix string, elements []*gdocs.StructuralElement) []Chapter {
	var (
		chapters []Chapter
		current  *Chapter
		counter  int
	)
	open := func(number, title string) {
		if current != nil {
			chapters = append(chapters, *current)
		}
		counter++
		current = &Chapter{ID: fmt.Sprintf("%s-%d", idPrefix, counter), Number: number, Title: title}
	}

	for _, el := range elements {
		switch style := namedStyle(el); {
		case style == styleHeading1:
			open(PlainText(el), "")
		case style == styleSubtitle && current != nil && current.Title == "":
			current.Title = PlainText(el)
		default:
			if current == nil {
				open("0", "Introduction")
			}
			current.Content += RenderHTML([]*gdocs.StructuralElement{el})
		}
	}
	if current != nil {
		chapters = append(chapters, *current)
	}
	return chapters
}

// Service resolves document ids and builds libraries.
type Service struct {
	fetcher   Fetcher
	defaultID string
	logger    *slog.Logger
}

func NewService(fetcher Fetcher, defaultID string, logger *slog.Logger) *Service {
	return &Service{fetcher: fetcher, defaultID: defaultID, logger: logger.With(slog.String("component", "docs"))}
}

// Library fetches the document and reshapes it. An empty id selects the
// configured default document.
func (s *Service) Library(ctx context.Context, id string) (Library, error) {
	if id == "" {
		id = s.defaultID
	}
	if id == "" {
		return Library{}, apperr.New(apperr.KindValidation, "docs.library", "documentId is required")
	}
	doc, err := s.fetcher.Document(ctx, id)
	if err != nil {
		s.logger.Warn("document fetch failed", slog.String("document_id", id), slog.String("error", err.Error()))
		return Library{}, err
	}
	lib := BuildLibrary(id, doc)
	s.logger.Info("document reshaped", slog.String("document_id", id), slog.Int("books", len(lib.Books)))
	return lib, nil
}
