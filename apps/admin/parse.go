package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/worksheet"
)

// parse prints the blocks of a local worksheet file, or their HTML rendering.
func (cli *commandLine) parse(path string, render bool, mode string) error {
	if mode != "" && mode != worksheet.ModePreview && mode != worksheet.ModeRun {
		return core.NewValidationMessage(fmt.Sprintf("invalid mode %q; expected preview or run", mode))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading worksheet")
	}

	p := worksheet.Parser{Warn: func(line int, msg string) {
		cli.logger.Warn(fmt.Sprintf("%s:%d: %s", path, line, msg))
	}}
	blocks := p.Parse(worksheet.SplitLines(string(data)))

	if render {
		r := worksheet.NewRenderer()
		r.Warn = func(msg string) { cli.logger.Warn(msg) }
		_, err = fmt.Fprintln(cli.out, r.Render(blocks, worksheet.RenderOptions{Mode: mode}))
		return err
	}

	out, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding blocks")
	}
	_, err = fmt.Fprintln(cli.out, string(out))
	return err
}
