package worksheet

// Block types, as emitted in JSON.
const (
	TypeText       = "text"
	TypeList       = "list"
	TypePython     = "python"
	TypeHeader     = "header"
	TypeSection    = "section"
	TypeGroupIntro = "groupIntro"
	TypeEndGroup   = "endGroup"
	TypeQuestion   = "question"

	// Google Doc block types
	TypeInfo           = "info"
	TypeCode           = "code"
	TypeTextResponse   = "textresponse"
	TypeFeedbackPrompt = "feedbackprompt"
	TypeRoles          = "roles"

	// only shown in preview mode
	TypeSampleResponses = "sampleresponses"
	TypeFollowupPrompt  = "followupprompt"
)

// Block is one unit of a parsed worksheet.
type Block interface {
	BlockType() string
}

type TextBlock struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ListBlock struct {
	Type     string   `json:"type"`
	ListType string   `json:"listType"` // ul | ol
	Items    []string `json:"items"`
}

type PythonBlock struct {
	Type    string `json:"type"`
	Content string `json:"content"`

	lines []string
}

type HeaderBlock struct {
	Type    string `json:"type"`
	Tag     string `json:"tag"` // title | name
	Content string `json:"content"`
}

type SectionBlock struct {
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Content []Block `json:"content"`
}

type GroupIntroBlock struct {
	Type    string `json:"type"`
	GroupID int    `json:"groupId"`
	Content string `json:"content"`
}

type EndGroupBlock struct {
	Type string `json:"type"`
}

type QuestionBlock struct {
	Type          string         `json:"type"`
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	ResponseID    int            `json:"responseId"`
	Prompt        string         `json:"prompt"`
	ResponseLines int            `json:"responseLines"`
	Samples       []string       `json:"samples"`
	Feedback      []string       `json:"feedback"`
	Followups     []string       `json:"followups"`
	PythonBlocks  []*PythonBlock `json:"pythonBlocks,omitempty"`
}

// DocBlock is produced by the Google Doc parser.
type DocBlock struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

func (b *TextBlock) BlockType() string       { return TypeText }
func (b *ListBlock) BlockType() string       { return TypeList }
func (b *PythonBlock) BlockType() string     { return TypePython }
func (b *HeaderBlock) BlockType() string     { return TypeHeader }
func (b *SectionBlock) BlockType() string    { return TypeSection }
func (b *GroupIntroBlock) BlockType() string { return TypeGroupIntro }
func (b *EndGroupBlock) BlockType() string   { return TypeEndGroup }
func (b *QuestionBlock) BlockType() string   { return TypeQuestion }
func (b *DocBlock) BlockType() string        { return b.Type }
