package worksheet

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Render modes
const (
	ModePreview = "preview"
	ModeRun     = "run"
)

var hiddenOutsidePreview = map[string]bool{
	TypeSampleResponses: true,
	TypeFeedbackPrompt:  true,
	TypeFollowupPrompt:  true,
}

type RenderOptions struct {
	Mode     string // preview (default) | run
	Editable bool
	IsActive bool
}

func (o RenderOptions) preview() bool { return o.Mode == "" || o.Mode == ModePreview }

// Renderer writes parsed blocks as HTML. Formatted content goes through a UGC sanitizing policy
// and plain text is escaped.
type Renderer struct {
	policy *bluemonday.Policy

	// Warn receives the types of skipped blocks.
	Warn func(msg string)
}

func NewRenderer() *Renderer {
	return &Renderer{policy: bluemonday.UGCPolicy()}
}

// Render is a shortcut for NewRenderer().Render.
func Render(blocks []Block, opts RenderOptions) string {
	return NewRenderer().Render(blocks, opts)
}

func (r *Renderer) Render(blocks []Block, opts RenderOptions) string {
	var b strings.Builder
	r.render(&b, blocks, opts, "")
	return b.String()
}

func (r *Renderer) warn(format string, args ...interface{}) {
	if r.Warn != nil {
		r.Warn(fmt.Sprintf(format, args...))
	}
}

func (r *Renderer) safe(s string) string { return r.policy.Sanitize(s) }

func (r *Renderer) render(b *strings.Builder, blocks []Block, opts RenderOptions, prefix string) {
	for i, block := range blocks {
		if block == nil {
			continue
		}
		index := prefix + strconv.Itoa(i)
		if hiddenOutsidePreview[block.BlockType()] && !opts.preview() {
			continue
		}

		switch blk := block.(type) {
		case *EndGroupBlock:
			if opts.preview() {
				b.WriteString(`<hr class="my-4">`)
			} else {
				b.WriteString(`<div data-type="endGroup"></div>`)
			}

		case *HeaderBlock:
			tag := "p"
			if blk.Tag == "title" {
				tag = "h2"
			}
			fmt.Fprintf(b, `<%s class="my-3 font-bold">%s</%s>`, tag, r.safe(blk.Content), tag)

		case *TextBlock:
			fmt.Fprintf(b, `<p class="my-2"><span>%s</span></p>`, r.safe(blk.Content))

		case *ListBlock:
			tag := "ol"
			if blk.ListType == "ul" {
				tag = "ul"
			}
			fmt.Fprintf(b, `<%s class="my-2 list-disc list-inside">`, tag)
			for _, item := range blk.Items {
				fmt.Fprintf(b, `<li><span>%s</span></li>`, r.safe(item))
			}
			fmt.Fprintf(b, `</%s>`, tag)

		case *GroupIntroBlock:
			fmt.Fprintf(b, `<div class="my-4 border-t pt-4"><h3 class="text-lg font-semibold"><span>%s</span></h3></div>`, r.safe(blk.Content))

		case *SectionBlock:
			fmt.Fprintf(b, `<div class="my-4"><h4 class="font-semibold">%s</h4>`, r.safe(blk.Name))
			if len(blk.Content) > 0 {
				r.render(b, blk.Content, opts, index+"-")
			}
			b.WriteString(`</div>`)

		case *PythonBlock:
			r.renderPython(b, blk, index, opts)

		case *QuestionBlock:
			r.renderQuestion(b, blk, index, opts)

		default:
			r.warn("unhandled block type: %s", block.BlockType())
		}
	}
}

func (r *Renderer) renderPython(b *strings.Builder, blk *PythonBlock, index string, opts RenderOptions) {
	code := html.EscapeString(blk.Content)
	if opts.Mode == ModeRun && opts.Editable && opts.IsActive {
		fmt.Fprintf(b, `<textarea class="python-editor" data-block="%s" spellcheck="false">%s</textarea>`, index, code)
		return
	}
	fmt.Fprintf(b, `<pre class="python-block" data-block="%s"><code class="language-python">%s</code></pre>`, index, code)
}

func (r *Renderer) renderQuestion(b *strings.Builder, blk *QuestionBlock, index string, opts RenderOptions) {
	fmt.Fprintf(b, `<div class="mb-3" id="q-%s">`, html.EscapeString(blk.ID))
	fmt.Fprintf(b, `<p><strong>%s</strong> <span>%s</span></p>`, html.EscapeString(blk.Label), r.safe(blk.Prompt))

	for i, py := range blk.PythonBlocks {
		r.renderPython(b, py, index+"-"+strconv.Itoa(i), opts)
	}

	rows := blk.ResponseLines
	if rows < 1 {
		rows = 1
	}
	readOnly := ""
	if !opts.Editable {
		readOnly = " readonly"
	}
	fmt.Fprintf(b, `<textarea class="form-control mt-2" name="response-%d" rows="%d"%s></textarea>`, blk.ResponseID, rows, readOnly)

	if opts.preview() {
		r.renderExtras(b, "Sample Responses:", blk.Samples)
		r.renderExtras(b, "Feedback Prompts:", blk.Feedback)
		r.renderExtras(b, "Follow-up Prompts:", blk.Followups)
	}
	b.WriteString(`</div>`)
}

func (r *Renderer) renderExtras(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, `<div class="mt-2 text-muted small"><strong>%s</strong><ul>`, title)
	for _, item := range items {
		fmt.Fprintf(b, `<li>%s</li>`, r.safe(item))
	}
	b.WriteString(`</ul></div>`)
}
