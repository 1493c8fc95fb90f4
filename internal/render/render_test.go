package render

import (
	"strings"
	"testing"

	"github.com/sokinpui/melt.go/internal/parser"
)

const response = `Intro text
<change_code file="a.go">
<<<<<<< SEARCH
old
=======
new
>>>>>>> REPLACE
</change_code>
Some **closing** words.
`

func TestHTML(t *testing.T) {
	result, err := parser.Parse(response, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	out, err := HTML(result.Fragments)
	if err != nil {
		t.Fatalf("HTML failed: %v", err)
	}
	for _, want := range []string{
		`<p>Intro text</p>`,
		`class="language-codechange"`,
		`&lt;&lt;&lt;&lt;&lt;&lt;&lt; SEARCH`,
		`<strong>closing</strong>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML missing %q:\n%s", want, out)
		}
	}
}

func TestDocumentEscapesTitle(t *testing.T) {
	out, err := Document("a <b>", []string{"hi\n"})
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if !strings.Contains(out, "<title>a &lt;b&gt;</title>") {
		t.Errorf("title not escaped:\n%s", out)
	}
}

func TestCodeBlocks(t *testing.T) {
	result, err := parser.Parse(response, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	fragments := append(result.Fragments, "```go\nfmt.Println()\n```\n")

	blocks, err := CodeBlocks(fragments, ChangeLang)
	if err != nil {
		t.Fatalf("CodeBlocks failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 change block, got %d", len(blocks))
	}
	if blocks[0].Hint != "Intro text" {
		t.Errorf("Hint = %q", blocks[0].Hint)
	}
	if !strings.HasPrefix(blocks[0].Content, `<change_code file="a.go">`) {
		t.Errorf("Content = %q", blocks[0].Content)
	}

	all, err := CodeBlocks(fragments, "")
	if err != nil {
		t.Fatalf("CodeBlocks failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 blocks in total, got %d", len(all))
	}
}
