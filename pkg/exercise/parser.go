package exercise

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/entrhq/orthoforge/pkg/browser"
)

// Exercise is what the solver knows about the current question.
type Exercise struct {
	// Question is the sentence text sent to the model
	Question string

	// Options are the labels of a multiple-choice exercise, if any
	Options []string
}

// Prompt renders the exercise for the model.
func (e *Exercise) Prompt() string {
	if len(e.Options) == 0 {
		return e.Question
	}
	return fmt.Sprintf("%s\nChoix possibles : %s", e.Question, strings.Join(e.Options, " / "))
}

// Parser reads the current exercise from a page.
type Parser interface {
	Parse(ctx context.Context, page browser.Page) (*Exercise, error)
}

// HTMLParser reads the sentence container's markup and extracts its text
// with x/net/html.
type HTMLParser struct {
	Sentence string
	Timeout  time.Duration
}

var _ Parser = (*HTMLParser)(nil)

// Parse implements Parser.
func (p *HTMLParser) Parse(ctx context.Context, page browser.Page) (*Exercise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := page.Locator(p.Sentence).InnerHTML(p.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrParse, p.Sentence, err)
	}

	ex, err := parseSentenceHTML(raw)
	if err != nil {
		return nil, err
	}
	if ex.Question == "" {
		return nil, fmt.Errorf("%w: empty sentence", ErrParse)
	}
	return ex, nil
}

// parseSentenceHTML extracts the visible sentence and any <option> labels.
func parseSentenceHTML(raw string) (*Exercise, error) {
	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(raw), container)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	ex := &Exercise{}
	var text strings.Builder
	for _, n := range nodes {
		collectText(n, &text, ex)
	}
	ex.Question = strings.Join(strings.Fields(text.String()), " ")
	return ex, nil
}

func collectText(n *html.Node, text *strings.Builder, ex *Exercise) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		case atom.Select:
			// The select stands for the blank in the sentence.
			text.WriteString(" ___ ")
			collectOptions(n, ex)
			return
		case atom.Br:
			text.WriteString(" ")
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, text, ex)
	}
}

func collectOptions(n *html.Node, ex *Exercise) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Option {
			var b strings.Builder
			for t := c.FirstChild; t != nil; t = t.NextSibling {
				if t.Type == html.TextNode {
					b.WriteString(t.Data)
				}
			}
			if label := strings.Join(strings.Fields(b.String()), " "); label != "" {
				ex.Options = append(ex.Options, label)
			}
			continue
		}
		collectOptions(c, ex)
	}
}
