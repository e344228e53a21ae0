package worksheet

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	docQuestionIDRegex = regexp.MustCompile(`\\question\{(.*?)\}`)
	documentIDRegex    = regexp.MustCompile(`/d/([a-zA-Z0-9-_]+)`)

	ErrInvalidDocumentURL = errors.New("invalid sheet_url")
)

// ExtractDocumentID returns the `/d/<id>` part of a Google Docs or Sheets URL.
func ExtractDocumentID(url string) (string, error) {
	m := documentIDRegex.FindStringSubmatch(url)
	if m == nil {
		return "", ErrInvalidDocumentURL
	}
	return m[1], nil
}

// BuildDocHTML wraps each non-empty paragraph in <p>, one per line.
func BuildDocHTML(paragraphs []string) string {
	parts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, "<p>"+html.EscapeString(p)+"</p>")
		}
	}
	return strings.Join(parts, "\n")
}

// ParseGoogleDocHTML groups the top level body elements of a Google Doc export into blocks.
// Command paragraphs open a new block; any other element is appended, as HTML, to the open one.
func ParseGoogleDocHTML(doc string) ([]*DocBlock, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, errors.Wrap(err, "parsing document html")
	}
	body := findElement(root, atom.Body)
	blocks := make([]*DocBlock, 0)
	if body == nil {
		return blocks, nil
	}

	var current *DocBlock
	open := func(b *DocBlock) {
		if current != nil {
			blocks = append(blocks, current)
		}
		current = b
	}

	for el := body.FirstChild; el != nil; el = el.NextSibling {
		if el.Type != html.ElementNode {
			continue
		}
		text := strings.TrimSpace(textContent(el))

		switch {
		case strings.HasPrefix(text, `\question{`):
			if current != nil {
				blocks = append(blocks, current)
				current = nil
			}
			id := ""
			if m := docQuestionIDRegex.FindStringSubmatch(text); m != nil {
				id = m[1]
			}
			if id == "" {
				id = fmt.Sprintf("q%d", len(blocks)+1)
			}
			current = &DocBlock{Type: TypeQuestion, ID: id}
		case strings.HasPrefix(text, `\textresponse`):
			open(&DocBlock{Type: TypeTextResponse})
		case strings.HasPrefix(text, `\python`):
			open(&DocBlock{Type: TypeCode, Language: "python"})
		case strings.HasPrefix(text, `\feedbackprompt`):
			open(&DocBlock{Type: TypeFeedbackPrompt})
		case strings.HasPrefix(text, `\roles`):
			open(&DocBlock{Type: TypeRoles})
		case strings.HasPrefix(text, `\`):
			// unknown command
		default:
			if current == nil {
				current = &DocBlock{Type: TypeInfo}
			}
			var buf bytes.Buffer
			if err := html.Render(&buf, el); err != nil {
				return nil, errors.Wrap(err, "rendering element")
			}
			current.Content += buf.String()
		}
	}
	if current != nil {
		blocks = append(blocks, current)
	}
	return blocks, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
