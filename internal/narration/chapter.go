package narration

import (
	"context"
	"fmt"
)

// Page is the set of paragraphs sharing one page number.
type Page struct {
	Number     int
	Paragraphs []Paragraph
}

// GroupByPage splits paragraphs by page number. Pages keep the order in
// which they first appear; paragraphs keep their input order.
func GroupByPage(paragraphs []Paragraph) []Page {
	index := make(map[int]int)
	var pages []Page
	for _, p := range paragraphs {
		i, ok := index[p.PageNumber]
		if !ok {
			i = len(pages)
			index[p.PageNumber] = i
			pages = append(pages, Page{Number: p.PageNumber})
		}
		pages[i].Paragraphs = append(pages[i].Paragraphs, p)
	}
	return pages
}

// ChapterRequest narrates every page of a chapter.
type ChapterRequest struct {
	Paragraphs            []Paragraph
	Voice                 string
	Language              string
	MaxChars              int
	InterSegmentSilenceMs *int
	// Progress receives an overall percentage and a short message.
	Progress func(percent int, message string)
}

// PageResult is the outcome of one page. Err is set when that page failed;
// other pages are unaffected.
type PageResult struct {
	PageNumber int
	Result     Result
	Err        error
}

// RunChapter validates the whole chapter once, then runs the page pipeline
// for each page in order. A validation error fails the chapter; any other
// failure is confined to its page.
func (p *Pipeline) RunChapter(ctx context.Context, req ChapterRequest) ([]PageResult, error) {
	if _, err := p.normalize(Request{
		Paragraphs:            req.Paragraphs,
		Voice:                 req.Voice,
		Language:              req.Language,
		MaxChars:              req.MaxChars,
		InterSegmentSilenceMs: req.InterSegmentSilenceMs,
	}); err != nil {
		return nil, err
	}

	pages := GroupByPage(req.Paragraphs)
	report := func(percent int, msg string) {
		if req.Progress != nil {
			req.Progress(percent, msg)
		}
	}

	results := make([]PageResult, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		report(i*100/len(pages), fmt.Sprintf("synthesizing page %d (%d of %d)", page.Number, i+1, len(pages)))

		res, err := p.Run(ctx, Request{
			Paragraphs:            page.Paragraphs,
			Voice:                 req.Voice,
			Language:              req.Language,
			MaxChars:              req.MaxChars,
			InterSegmentSilenceMs: req.InterSegmentSilenceMs,
			Progress: func(done, total int) {
				report((i*total+done)*100/(len(pages)*total), fmt.Sprintf("page %d: segment %d of %d", page.Number, done, total))
			},
		})
		results = append(results, PageResult{PageNumber: page.Number, Result: res, Err: err})
	}
	report(100, fmt.Sprintf("synthesized %d pages", len(pages)))
	return results, nil
}
