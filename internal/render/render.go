package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ChangeLang is the info string of the fence wrapping a raw edit block.
const ChangeLang = "codechange"

// CodeBlock is a fenced code block found in the narrative.
type CodeBlock struct {
	// Hint is the text of the paragraph immediately preceding the block.
	Hint string
	Lang string
	// Content is the raw text inside the fence.
	Content string
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown joins narrative fragments into one markdown document.
func Markdown(fragments []string) string {
	return strings.Join(fragments, "")
}

// HTML renders narrative fragments as an HTML fragment.
func HTML(fragments []string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(fragments)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Document wraps the rendered narrative in a standalone HTML page.
func Document(title string, fragments []string) (string, error) {
	body, err := HTML(fragments)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// CodeBlocks walks the markdown AST of fragments and returns every fenced
// code block with its preceding paragraph. With lang set only blocks of
// that language are returned.
func CodeBlocks(fragments []string, lang string) ([]CodeBlock, error) {
	source := []byte(Markdown(fragments))
	root := markdown.Parser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var block CodeBlock
		if fenced.Info != nil {
			block.Lang = string(fenced.Info.Text(source))
		}
		if lang != "" && block.Lang != lang {
			return ast.WalkSkipChildren, nil
		}

		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		block.Content = content.String()

		if prev := fenced.PreviousSibling(); prev != nil {
			if p, ok := prev.(*ast.Paragraph); ok {
				block.Hint = strings.TrimSpace(string(p.Text(source)))
			}
		}

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}
