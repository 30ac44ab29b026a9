package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gdocs "google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/loqalabs/loqa-reader/internal/apperr"
)

// Fetcher loads a document with all of its tabs.
type Fetcher interface {
	Document(ctx context.Context, id string) (*gdocs.Document, error)
}

// Credentials selects how the Docs client authenticates. With both fields
// empty the client falls back to application default credentials.
type Credentials struct {
	JSON string
	File string
}

// GoogleFetcher reads documents through the Google Docs API.
type GoogleFetcher struct {
	srv    *gdocs.Service
	logger *slog.Logger
}

func NewGoogleFetcher(ctx context.Context, creds Credentials, logger *slog.Logger) (*GoogleFetcher, error) {
	opts := []option.ClientOption{option.WithScopes(gdocs.DocumentsReadonlyScope)}
	switch {
	case creds.JSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.JSON)))
	case creds.File != "":
		opts = append(opts, option.WithCredentialsFile(creds.File))
	}
	srv, err := gdocs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create docs service: %w", err)
	}
	return &GoogleFetcher{srv: srv, logger: logger.With(slog.String("component", "docs"))}, nil
}

func (f *GoogleFetcher) Document(ctx context.Context, id string) (*gdocs.Document, error) {
	f.logger.Info("fetching document", slog.String("document_id", id))
	doc, err := f.srv.Documents.Get(id).IncludeTabsContent(true).Context(ctx).Do()
	if err != nil {
		return nil, mapAPIError(id, err)
	}
	return doc, nil
}

// mapAPIError keeps the upstream HTTP code visible in the message.
func mapAPIError(id string, err error) error {
	const op = "docs.fetch"
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return apperr.Wrap(apperr.KindNotFound, op, fmt.Sprintf("document %s not found", id), err)
		}
		return apperr.Wrap(apperr.KindUpstream, op, fmt.Sprintf("Google API error %d: %s", gerr.Code, reason(gerr)), err)
	}
	return apperr.Wrap(apperr.KindUpstream, op, "Google API request failed", err)
}

func reason(gerr *googleapi.Error) string {
	if gerr.Message != "" {
		return gerr.Message
	}
	return http.StatusText(gerr.Code)
}
