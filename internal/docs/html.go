package docs

import (
	"html"
	"strings"

	gdocs "google.golang.org/api/docs/v1"
)

var lineBreaks = strings.NewReplacer("\v", "<br>", "\u0085", "<br>", "\n", "<br>")

var lineBreakStripper = strings.NewReplacer("\v", "", "\u0085", "", "\n", "")

// RenderHTML rebuilds basic markup for a run of structural elements.
// Unsupported element kinds (section breaks, tables of contents) are skipped.
func RenderHTML(elements []*gdocs.StructuralElement) string {
	var b strings.Builder
	for _, el := range elements {
		switch {
		case el == nil:
		case el.Paragraph != nil:
			b.WriteString(renderParagraph(el.Paragraph))
		case el.Table != nil:
			b.WriteString("<table>")
			for _, row := range el.Table.TableRows {
				b.WriteString("<tr>")
				for _, cell := range row.TableCells {
					b.WriteString("<td>")
					b.WriteString(RenderHTML(cell.Content))
					b.WriteString("</td>")
				}
				b.WriteString("</tr>")
			}
			b.WriteString("</table>\n")
		}
	}
	return b.String()
}

func renderParagraph(p *gdocs.Paragraph) string {
	var body strings.Builder
	var plain strings.Builder
	for _, pe := range p.Elements {
		switch {
		case pe.TextRun != nil:
			content := lineBreaks.Replace(html.EscapeString(pe.TextRun.Content))
			plain.WriteString(lineBreakStripper.Replace(pe.TextRun.Content))
			if style := pe.TextRun.TextStyle; style != nil {
				if style.Bold {
					content = "<strong>" + content + "</strong>"
				}
				if style.Italic {
					content = "<em>" + content + "</em>"
				}
				if style.Underline {
					content = "<u>" + content + "</u>"
				}
			}
			body.WriteString(content)
		case pe.HorizontalRule != nil:
			body.WriteString("<hr>")
		}
	}

	full := body.String()
	if strings.TrimSpace(plain.String()) != "" {
		return "<p>" + strings.TrimSpace(full) + "</p>"
	}
	// Blank lines and bare rules keep their markup so spacing survives.
	if strings.Contains(full, "<br>") || strings.Contains(full, "<hr>") {
		return "<p>" + full + "</p>"
	}
	return "<p></p>"
}

// PlainText is the visible text of an element with line breaks removed and
// surrounding whitespace trimmed.
func PlainText(el *gdocs.StructuralElement) string {
	if el == nil || el.Paragraph == nil {
		return ""
	}
	var b strings.Builder
	for _, pe := range el.Paragraph.Elements {
		if pe.TextRun != nil {
			b.WriteString(lineBreakStripper.Replace(pe.TextRun.Content))
		}
	}
	return strings.TrimSpace(b.String())
}

func namedStyle(el *gdocs.StructuralElement) string {
	if el == nil || el.Paragraph == nil || el.Paragraph.ParagraphStyle == nil {
		return ""
	}
	return el.Paragraph.ParagraphStyle.NamedStyleType
}
