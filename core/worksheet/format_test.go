package worksheet

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "no commands here", want: "no commands here"},
		{name: "bold", in: `a \textbf{b} c`, want: "a <strong>b</strong> c"},
		{name: "italic", in: `\textit{x}`, want: "<em>x</em>"},
		{name: "text", in: `f(\text{x})`, want: "f(x)"},
		{name: "several", in: `\textbf{a} and \textit{b}`, want: "<strong>a</strong> and <em>b</em>"},
		{name: "nested", in: `\textbf{bold \textit{both}}`, want: "<strong>bold <em>both</em></strong>"},
		{name: "nested braces", in: `\textbf{set {1, 2}}`, want: "<strong>set {1, 2}</strong>"},
		{name: "empty argument", in: `\textbf{}`, want: `\textbf{}`},
		{name: "unbalanced", in: `\textbf{oops`, want: `\textbf{oops`},
		{name: "unknown command", in: `\emph{x}`, want: `\emph{x}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.in); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandArg(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		cmd      string
		wantArg  string
		wantRest string
		wantOk   bool
	}{
		{name: "simple", in: `\title{Intro}`, cmd: "title", wantArg: "Intro", wantOk: true},
		{name: "trailing", in: `\question{What?} extra`, cmd: "question", wantArg: "What?", wantRest: " extra", wantOk: true},
		{name: "nested", in: `\question{Compute \textbf{x}}`, cmd: "question", wantArg: `Compute \textbf{x}`, wantOk: true},
		{name: "escaped brace", in: `\name{a \} b}`, cmd: "name", wantArg: `a \} b`, wantOk: true},
		{name: "other command", in: `\questiongroup{x}`, cmd: "question"},
		{name: "unbalanced", in: `\title{x`, cmd: "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg, rest, ok := commandArg(tt.in, tt.cmd)
			if arg != tt.wantArg || rest != tt.wantRest || ok != tt.wantOk {
				t.Errorf("commandArg() = (%q, %q, %v), want (%q, %q, %v)", arg, rest, ok, tt.wantArg, tt.wantRest, tt.wantOk)
			}
		})
	}
}

func TestLetterID(t *testing.T) {
	for n, want := range map[int]string{0: "a", 1: "b", 25: "z", 26: "aa", 27: "ab", 51: "az", 52: "ba"} {
		if got := letterID(n); got != want {
			t.Errorf("letterID(%d) = %q, want %q", n, got, want)
		}
	}
}
