package collector

import (
	"regexp"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// Tags whose content never reaches the plain-text output.
var ignoreTags = map[string]bool{
	"script": true, "style": true, "head": true, "nav": true,
	"footer": true, "noscript": true, "svg": true,
}

// Block elements that start a new line of text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "table": true, "tr": true, "section": true,
	"article": true, "details": true, "summary": true, "hr": true,
}

var (
	imageLink    = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// PlainText turns a README (markdown with optional embedded HTML) into
// readable text: markup is dropped, link text is kept and runs of blank lines
// are collapsed.
func PlainText(readme string) string {
	doc, err := html.Parse(strings.NewReader(readme))
	if err != nil {
		log.Warnf("Failed to parse README markup, using it verbatim: %v", err)
		return strings.TrimSpace(readme)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if ignoreTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	text := imageLink.ReplaceAllString(b.String(), "$1")
	text = markdownLink.ReplaceAllString(text, "$1")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	text = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
)

func sentenceTokenizer() *sentences.DefaultSentenceTokenizer {
	tokenizerOnce.Do(func() {
		t, err := english.NewSentenceTokenizer(nil)
		if err != nil {
			log.Warnf("Failed to load sentence tokenizer, previews will cut at word boundaries: %v", err)
			return
		}
		tokenizer = t
	})
	return tokenizer
}

// Preview returns at most maxChars characters of text, ending on a sentence
// boundary when one is available and on a word boundary otherwise.
func Preview(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	if t := sentenceTokenizer(); t != nil {
		var b strings.Builder
		used := 0
		for _, s := range t.Tokenize(text) {
			n := len([]rune(s.Text))
			if used+n > maxChars {
				break
			}
			b.WriteString(s.Text)
			used += n
		}
		if out := strings.TrimSpace(b.String()); out != "" {
			return out
		}
	}

	cut := string(runes[:maxChars])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
