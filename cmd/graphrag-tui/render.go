// ABOUTME: Renders agent markdown answers as coloured terminal text
// ABOUTME: Walks the goldmark AST and maps block and inline nodes to fatih/color styles

package main

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

type listState struct {
	ordered bool
	next    int
}

type termRenderer struct {
	src    []byte
	b      strings.Builder
	styles []color.Attribute
	lists  []listState
	quote  int
}

// renderMarkdown converts markdown source to terminal text.
func renderMarkdown(src string) string {
	r := &termRenderer{src: []byte(src)}
	doc := markdown.Parser().Parse(text.NewReader(r.src))
	_ = ast.Walk(doc, r.visit)

	out := strings.TrimRight(r.b.String(), "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

func (r *termRenderer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Heading:
		if entering {
			r.blockStart(n)
			r.push(color.Bold, color.FgCyan)
		} else {
			r.pop(2)
			r.b.WriteString("\n")
		}

	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			r.blockStart(n)
			if r.quote > 0 {
				r.write("│ ")
			}
		} else {
			r.b.WriteString("\n")
		}

	case *ast.Blockquote:
		if entering {
			r.quote++
			r.push(color.FgHiBlack)
		} else {
			r.quote--
			r.pop(1)
		}

	case *ast.List:
		if entering {
			r.blockStart(n)
			r.lists = append(r.lists, listState{ordered: n.IsOrdered(), next: n.Start})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
		}

	case *ast.ListItem:
		if entering {
			l := &r.lists[len(r.lists)-1]
			r.b.WriteString(strings.Repeat("  ", len(r.lists)-1))
			if l.ordered {
				r.b.WriteString(strconv.Itoa(l.next) + ". ")
				l.next++
			} else {
				r.b.WriteString("• ")
			}
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.blockStart(n)
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimRight(string(seg.Value(r.src)), "\n")
				r.b.WriteString(color.New(color.FgYellow).Sprint("    " + line))
				r.b.WriteString("\n")
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			r.blockStart(n)
			r.b.WriteString(color.New(color.FgHiBlack).Sprint(strings.Repeat("─", 40)))
			r.b.WriteString("\n")
		}

	case *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil

	case *ast.Emphasis:
		attr := color.Italic
		if n.Level >= 2 {
			attr = color.Bold
		}
		if entering {
			r.push(attr)
		} else {
			r.pop(1)
		}

	case *ast.CodeSpan:
		if entering {
			r.push(color.FgYellow)
		} else {
			r.pop(1)
		}

	case *ast.Link:
		if entering {
			r.push(color.Underline, color.FgBlue)
		} else {
			r.pop(2)
			r.b.WriteString(color.New(color.FgHiBlack).Sprint(" (" + string(n.Destination) + ")"))
		}

	case *ast.Image:
		if entering {
			r.write("[image: ")
		} else {
			r.write("]")
		}

	case *ast.AutoLink:
		if entering {
			r.push(color.Underline, color.FgBlue)
			r.write(string(n.URL(r.src)))
			r.pop(2)
		}
		return ast.WalkSkipChildren, nil

	case *ast.RawHTML:
		return ast.WalkSkipChildren, nil

	case *ast.Text:
		if entering {
			r.write(string(n.Segment.Value(r.src)))
			switch {
			case n.HardLineBreak():
				r.b.WriteString("\n")
			case n.SoftLineBreak():
				r.write(" ")
			}
		}

	case *ast.String:
		if entering {
			r.write(string(n.Value))
		}
	}
	return ast.WalkContinue, nil
}

// blockStart separates a block from the previous one with a blank line,
// except for the first block inside a list item or a list nested in one.
func (r *termRenderer) blockStart(n ast.Node) {
	if r.b.Len() == 0 {
		return
	}
	if p := n.Parent(); p != nil {
		if _, ok := p.(*ast.ListItem); ok {
			if _, nested := n.(*ast.List); !nested && p.FirstChild() != n {
				r.b.WriteString(strings.Repeat("  ", len(r.lists)))
			}
			return
		}
	}
	r.b.WriteString("\n")
}

func (r *termRenderer) push(attrs ...color.Attribute) {
	r.styles = append(r.styles, attrs...)
}

func (r *termRenderer) pop(n int) {
	r.styles = r.styles[:len(r.styles)-n]
}

// write emits s in the current style.
func (r *termRenderer) write(s string) {
	if len(r.styles) == 0 {
		r.b.WriteString(s)
		return
	}
	r.b.WriteString(color.New(r.styles...).Sprint(s))
}
