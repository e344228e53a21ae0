package worksheet

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser turns worksheet markup into blocks. The zero value is ready to use.
type Parser struct {
	// Warn receives recoverable markup problems along with their 1-based line number.
	Warn func(line int, msg string)
}

// Parse is a shortcut for a Parser without a warning hook.
func Parse(lines []string) []Block {
	return new(Parser).Parse(lines)
}

// SplitLines splits raw worksheet text into lines.
func SplitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// Parse never fails: malformed markup is reported through Warn and parsing carries on.
func (p *Parser) Parse(lines []string) []Block {
	st := &parseState{p: p, blocks: make([]Block, 0, len(lines)/2+1), responseID: 1}
	for i, line := range lines {
		st.lineNo = i + 1
		st.feed(line)
	}
	st.finish()
	return st.blocks
}

type parseState struct {
	p      *Parser
	lineNo int
	blocks []Block
	text   []string

	groupNumber    int
	questionLetter int
	responseID     int

	question *QuestionBlock
	python   *PythonBlock
	list     *ListBlock
}

func (st *parseState) warn(format string, args ...interface{}) {
	if st.p.Warn != nil {
		st.p.Warn(st.lineNo, fmt.Sprintf(format, args...))
	}
}

func (st *parseState) push(b Block) {
	st.blocks = append(st.blocks, b)
}

func (st *parseState) flushText() {
	if len(st.text) == 0 {
		return
	}
	st.push(&TextBlock{Type: TypeText, Content: strings.TrimSpace(strings.Join(st.text, " "))})
	st.text = st.text[:0]
}

func (st *parseState) closePython() {
	st.python.Content = strings.Join(st.python.lines, "\n")
	st.python.lines = nil
	st.python = nil
}

func (st *parseState) feed(line string) {
	trimmed := strings.TrimSpace(line)

	// python bodies are verbatim
	if st.python != nil {
		if trimmed == `\endpython` {
			st.closePython()
		} else {
			st.python.lines = append(st.python.lines, line)
		}
		return
	}

	switch {
	case trimmed == `\begin{itemize}` || trimmed == `\begin{enumerate}`:
		st.flushText()
		if st.list != nil {
			st.warn("list opened before the previous one was closed")
		}
		listType := "ol"
		if strings.Contains(trimmed, "itemize") {
			listType = "ul"
		}
		st.list = &ListBlock{Type: TypeList, ListType: listType, Items: []string{}}
		st.push(st.list)

	case trimmed == `\end{itemize}` || trimmed == `\end{enumerate}`:
		if st.list == nil {
			st.warn("%s without an open list", trimmed)
			return
		}
		st.flushText()
		st.list = nil

	case st.list != nil && strings.HasPrefix(trimmed, `\item`):
		st.list.Items = append(st.list.Items, Format(strings.TrimSpace(strings.TrimPrefix(trimmed, `\item`))))

	case trimmed == `\python`:
		st.flushText()
		st.python = &PythonBlock{Type: TypePython}
		if st.question != nil {
			st.question.PythonBlocks = append(st.question.PythonBlocks, st.python)
		} else {
			st.push(st.python)
		}

	case trimmed == `\endpython`:
		st.warn(`\endpython without \python`)

	case st.header(trimmed):
	case st.section(trimmed):

	case strings.HasPrefix(trimmed, `\questiongroup{`):
		st.flushText()
		st.groupNumber++
		st.questionLetter = 0
		arg, _, _ := commandArg(trimmed, "questiongroup")
		st.push(&GroupIntroBlock{Type: TypeGroupIntro, GroupID: st.groupNumber, Content: Format(arg)})

	case trimmed == `\endquestiongroup`:
		st.flushText()
		st.push(&EndGroupBlock{Type: TypeEndGroup})

	case strings.HasPrefix(trimmed, `\question{`):
		st.openQuestion(trimmed)

	case trimmed == `\endquestion`:
		if st.question == nil {
			st.warn(`\endquestion without a matching \question`)
			return
		}
		st.flushText()
		st.question = nil

	case strings.HasPrefix(trimmed, `\textresponse`):
		if st.question == nil {
			st.warn(`\textresponse outside of a question`)
			return
		}
		if arg, _, ok := commandArg(trimmed, "textresponse"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(arg)); err == nil && n > 0 {
				st.question.ResponseLines = n
			}
		}

	case strings.HasPrefix(trimmed, `\sampleresponses{`):
		st.questionExtra(trimmed, "sampleresponses", func(q *QuestionBlock, s string) { q.Samples = append(q.Samples, s) })
	case strings.HasPrefix(trimmed, `\feedbackprompt{`):
		st.questionExtra(trimmed, "feedbackprompt", func(q *QuestionBlock, s string) { q.Feedback = append(q.Feedback, s) })
	case strings.HasPrefix(trimmed, `\followupprompt{`):
		st.questionExtra(trimmed, "followupprompt", func(q *QuestionBlock, s string) { q.Followups = append(q.Followups, s) })

	default:
		if _, arg, ok := wholeLineArg(trimmed, "textbf"); ok {
			st.flushText()
			st.push(&TextBlock{Type: TypeText, Content: "<strong>" + Format(arg) + "</strong>"})
			return
		}
		if trimmed != "" {
			st.text = append(st.text, Format(trimmed))
		}
	}
}

func (st *parseState) header(trimmed string) bool {
	tag, arg, ok := wholeLineArg(trimmed, "title", "name")
	if !ok {
		return false
	}
	st.flushText()
	st.push(&HeaderBlock{Type: TypeHeader, Tag: tag, Content: Format(arg)})
	return true
}

func (st *parseState) section(trimmed string) bool {
	_, arg, ok := wholeLineArg(trimmed, "section", "section*")
	if !ok {
		return false
	}
	st.flushText()
	st.push(&SectionBlock{Type: TypeSection, Name: Format(arg), Content: []Block{}})
	return true
}

func (st *parseState) openQuestion(trimmed string) {
	st.flushText()
	if st.question != nil {
		st.warn(`\question opened before the previous one was closed`)
	}
	arg, _, _ := commandArg(trimmed, "question")
	id := letterID(st.questionLetter)
	st.questionLetter++
	st.question = &QuestionBlock{
		Type:          TypeQuestion,
		ID:            id,
		Label:         id + ".",
		ResponseID:    st.responseID,
		Prompt:        Format(arg),
		ResponseLines: 1,
		Samples:       []string{},
		Feedback:      []string{},
		Followups:     []string{},
	}
	st.responseID++
	st.push(st.question)
}

func (st *parseState) questionExtra(trimmed, cmd string, add func(*QuestionBlock, string)) {
	if st.question == nil {
		st.warn(`\%s outside of a question`, cmd)
		return
	}
	if arg, _, ok := commandArg(trimmed, cmd); ok && arg != "" {
		add(st.question, Format(arg))
	}
}

func (st *parseState) finish() {
	st.flushText()
	if st.python != nil {
		st.warn(`unterminated \python block`)
		st.closePython()
	}
	if st.question != nil {
		st.warn(`unterminated \question %q`, st.question.ID)
		st.question = nil
	}
	if st.list != nil {
		st.warn("unterminated list")
		st.list = nil
	}
}

// letterID maps 0, 1, .., 25, 26, .. to a, b, .., z, aa, ..
func letterID(n int) string {
	id := ""
	for n >= 0 {
		id = string(rune('a'+n%26)) + id
		n = n/26 - 1
	}
	return id
}
