package googlesvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
)

// ContentService reads worksheets from Google Sheets and Google Docs.
type ContentService struct {
	conf   core.GoogleConfig
	sheets *sheets.Service
	docs   *docs.Service
}

var _ activity.ContentFetcher = (*ContentService)(nil)

// NewContentService authenticates with the service account credentials file unless opts are given.
func NewContentService(ctx context.Context, conf core.GoogleConfig, opts ...option.ClientOption) (*ContentService, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{
			option.WithCredentialsFile(conf.CredentialsFile),
			option.WithScopes(sheets.SpreadsheetsReadonlyScope, docs.DocumentsReadonlyScope),
		}
	}
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating sheets client")
	}
	docsSvc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating docs client")
	}
	return &ContentService{conf: conf, sheets: sheetsSvc, docs: docsSvc}, nil
}

func (svc *ContentService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if svc.conf.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, svc.conf.RequestTimeout)
}

// SheetLines returns the first cell of every row in the configured range; empty rows become empty lines.
func (svc *ContentService) SheetLines(ctx context.Context, documentID string) ([]string, error) {
	ctx, cancel := svc.withTimeout(ctx)
	defer cancel()

	rng := svc.conf.SheetRange
	if rng == "" {
		rng = "A:A"
	}
	res, err := svc.sheets.Spreadsheets.Values.Get(documentID, rng).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "getting sheet values")
	}

	lines := make([]string, 0, len(res.Values))
	for _, row := range res.Values {
		if len(row) == 0 || row[0] == nil {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, fmt.Sprint(row[0]))
	}
	return lines, nil
}

// DocParagraphs returns the text of every paragraph of the document body, in order.
func (svc *ContentService) DocParagraphs(ctx context.Context, documentID string) ([]string, error) {
	ctx, cancel := svc.withTimeout(ctx)
	defer cancel()

	doc, err := svc.docs.Documents.Get(documentID).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "getting document")
	}
	if doc.Body == nil {
		return []string{}, nil
	}

	paragraphs := make([]string, 0, len(doc.Body.Content))
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil || len(el.Paragraph.Elements) == 0 {
			continue
		}
		var b strings.Builder
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
		paragraphs = append(paragraphs, b.String())
	}
	return paragraphs, nil
}
