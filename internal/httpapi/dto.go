package httpapi

import (
	"encoding/base64"
	"fmt"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/narration"
)

type paragraphDTO struct {
	Text                 string `json:"text"`
	ParagraphType        string `json:"paragraphType"`
	PageNumber           *int   `json:"pageNumber"`
	ParagraphIndexOnPage *int   `json:"paragraphIndexOnPage"`
}

type synthesizePageRequest struct {
	Paragraphs            []paragraphDTO `json:"paragraphs"`
	VoiceName             string         `json:"voiceName"`
	LanguageCode          string         `json:"languageCode"`
	MaxChars              int            `json:"maxChars"`
	InterSegmentSilenceMs *int           `json:"interSegmentSilenceMs"`
}

type synthesizeChapterRequest struct {
	DocumentID            string         `json:"documentId"`
	ChapterID             string         `json:"chapterId"`
	VoiceName             string         `json:"voiceName"`
	LanguageCode          string         `json:"languageCode"`
	ChapterParagraphs     []paragraphDTO `json:"chapterParagraphs"`
	MaxChars              int            `json:"maxChars"`
	InterSegmentSilenceMs *int           `json:"interSegmentSilenceMs"`
}

type synthesizeSpeechRequest struct {
	Text         string `json:"text"`
	VoiceName    string `json:"voiceName"`
	LanguageCode string `json:"languageCode"`
}

type pageResponse struct {
	AudioContent *string               `json:"audioContent"`
	Format       string                `json:"format,omitempty"`
	Timestamps   []narration.Timestamp `json:"timestamps"`
	DurationMs   int                   `json:"durationMs"`
	Error        string                `json:"error,omitempty"`
}

type pageAudioResponse struct {
	PageNumber int `json:"pageNumber"`
	pageResponse
	ErrorKind string `json:"errorKind,omitempty"`
}

type chapterResponse struct {
	DocumentID         string              `json:"documentId"`
	ChapterID          string              `json:"chapterId"`
	PageAudioResponses []pageAudioResponse `json:"pageAudioResponses"`
}

type jobResponse struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	Percent   int    `json:"percent"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// toParagraphs checks the identity fields the JSON decoder cannot enforce.
// Type names are checked by the pipeline.
func toParagraphs(in []paragraphDTO) ([]narration.Paragraph, error) {
	out := make([]narration.Paragraph, 0, len(in))
	for i, p := range in {
		if p.PageNumber == nil || p.ParagraphIndexOnPage == nil {
			return nil, apperr.New(apperr.KindValidation, "http.decode",
				fmt.Sprintf("paragraph %d: pageNumber and paragraphIndexOnPage are required", i))
		}
		out = append(out, narration.Paragraph{
			Ref:  narration.Ref{PageNumber: *p.PageNumber, ParagraphIndexOnPage: *p.ParagraphIndexOnPage},
			Text: p.Text,
			Type: narration.ParagraphType(p.ParagraphType),
		})
	}
	return out, nil
}

func newPageResponse(res narration.Result) pageResponse {
	resp := pageResponse{Timestamps: res.Timestamps, DurationMs: res.DurationMs}
	if resp.Timestamps == nil {
		resp.Timestamps = []narration.Timestamp{}
	}
	if !res.NoContent && res.Audio != nil {
		encoded := base64.StdEncoding.EncodeToString(res.Audio)
		resp.AudioContent = &encoded
		resp.Format = res.Format
	}
	return resp
}

func newChapterResponse(documentID, chapterID string, pages []narration.PageResult) chapterResponse {
	resp := chapterResponse{DocumentID: documentID, ChapterID: chapterID, PageAudioResponses: make([]pageAudioResponse, 0, len(pages))}
	for _, p := range pages {
		entry := pageAudioResponse{PageNumber: p.PageNumber}
		if p.Err != nil {
			entry.pageResponse = pageResponse{Timestamps: []narration.Timestamp{}, Error: apperr.Message(p.Err)}
			entry.ErrorKind = string(apperr.KindOf(p.Err))
		} else {
			entry.pageResponse = newPageResponse(p.Result)
		}
		resp.PageAudioResponses = append(resp.PageAudioResponses, entry)
	}
	return resp
}
