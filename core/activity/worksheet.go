package activity

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pogilapp/server/core/worksheet"
)

// Worksheet sources, as reported to the metrics recorder.
const (
	SourceSheet = "sheet"
	SourceDoc   = "doc"
)

func (svc *service) documentID(inst Instance) (string, error) {
	if !inst.SheetURL.Valid || inst.SheetURL.String == "" {
		return "", ErrNoSheetURL
	}
	return worksheet.ExtractDocumentID(inst.SheetURL.String)
}

func (svc *service) PreviewBlocks(ctx context.Context, inst Instance) ([]worksheet.Block, error) {
	docID, err := svc.documentID(inst)
	if err != nil {
		return nil, err
	}
	if svc.Content == nil {
		return nil, errors.New("no content fetcher configured")
	}
	lines, err := svc.Content.SheetLines(ctx, docID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching sheet %s", docID)
	}

	nWarnings := 0
	p := worksheet.Parser{Warn: func(line int, msg string) {
		nWarnings++
		svc.Logger.Warn("worksheet markup", map[string]interface{}{"instance": inst.ID, "line": line, "problem": msg})
	}}
	blocks := p.Parse(lines)
	svc.Metrics.WorksheetParsed(SourceSheet, len(blocks), nWarnings)
	return blocks, nil
}

func (svc *service) RenderInstance(ctx context.Context, inst Instance, opts worksheet.RenderOptions) (string, error) {
	blocks, err := svc.PreviewBlocks(ctx, inst)
	if err != nil {
		return "", err
	}
	r := worksheet.NewRenderer()
	r.Warn = func(msg string) {
		svc.Logger.Debug("worksheet render", map[string]interface{}{"instance": inst.ID, "problem": msg})
	}
	return r.Render(blocks, opts), nil
}

func (svc *service) DocBlocks(ctx context.Context, inst Instance) ([]*worksheet.DocBlock, error) {
	docID, err := svc.documentID(inst)
	if err != nil {
		return nil, err
	}
	if svc.Content == nil {
		return nil, errors.New("no content fetcher configured")
	}
	paragraphs, err := svc.Content.DocParagraphs(ctx, docID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching document %s", docID)
	}
	blocks, err := worksheet.ParseGoogleDocHTML(worksheet.BuildDocHTML(paragraphs))
	if err != nil {
		return nil, errors.Wrap(err, "parsing document")
	}
	svc.Metrics.WorksheetParsed(SourceDoc, len(blocks), 0)
	return blocks, nil
}
