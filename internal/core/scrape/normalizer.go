package scrape

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrEmptyContent は入力HTMLまたは正規化結果が空の場合のエラー
var ErrEmptyContent = errors.New("page content is empty")

// allowedTags は正規化後に残す要素の許可リスト。
// リスト外の要素は、許可要素を子孫に持てば展開（unwrap）、持たなければ破棄。
var allowedTags = map[string]struct{}{
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"p": {}, "a": {}, "span": {},
	"strong": {}, "b": {}, "u": {}, "s": {}, "mark": {}, "small": {},
	"blockquote": {}, "q": {}, "abbr": {},
	"ul": {}, "ol": {}, "li": {},
	"div": {},
	"table": {}, "thead": {}, "tbody": {}, "tr": {}, "th": {}, "td": {},
}

// textContainerTags は本文を構成する親要素。
// これ以外の要素の直下にあるリンクはナビゲーションとみなして除去する。
var textContainerTags = map[string]struct{}{
	"p": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"span": {}, "q": {}, "blockquote": {}, "li": {},
}

var (
	controlRE    = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	spaceRunRE   = regexp.MustCompile(`[ \t]+`)
	newlineRunRE = regexp.MustCompile(`\n+`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// NormalizeHTML は取得したHTMLをインデックス可能なプレーンテキストへ正規化します。
//
// 処理順: コメント除去 → 許可リストによるサニタイズ → 空要素の破棄 →
// リンクの刈り込み → Markdown変換 → 空白の畳み込み。
// 入力・結果のどちらかが空なら ErrEmptyContent を返します。
func NormalizeHTML(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("HTMLの解析に失敗: %w", err)
	}

	stripNonContent(doc)
	sanitizeChildren(doc)
	dropEmptyElements(doc)
	pruneAnchors(doc)

	var buf strings.Builder
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("HTMLの再構築に失敗: %w", err)
		}
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("Markdown変換に失敗: %w", err)
	}

	cleaned := CleanText(markdown)
	if cleaned == "" {
		return "", ErrEmptyContent
	}

	return cleaned, nil
}

// CleanText は制御文字を取り除き、連続する空白を1つに畳み込みます。
// 制御文字の除去が改行も落とすため、結果は常に1行のテキストになります。
func CleanText(text string) string {
	text = controlRE.ReplaceAllString(text, "")
	text = spaceRunRE.ReplaceAllString(text, " ")
	text = newlineRunRE.ReplaceAllString(text, "\n")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// stripNonContent はコメントとDOCTYPEをツリーから取り除きます
func stripNonContent(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode, html.DoctypeNode:
			n.RemoveChild(c)
		default:
			stripNonContent(c)
		}
		c = next
	}
}

// sanitizeChildren は許可リストに基づいて要素を整理します。
// 許可要素は中へ再帰、非許可要素は許可子孫があれば展開、なければ破棄します。
func sanitizeChildren(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			if _, ok := allowedTags[c.Data]; ok {
				sanitizeChildren(c)
			} else if hasAllowedDescendant(c) {
				sanitizeChildren(c)
				unwrap(c)
			} else {
				n.RemoveChild(c)
			}
		}
		c = next
	}
}

// hasAllowedDescendant は許可リストの要素を子孫に持つかを返します
func hasAllowedDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if _, ok := allowedTags[c.Data]; ok {
			return true
		}
		if hasAllowedDescendant(c) {
			return true
		}
	}
	return false
}

// unwrap は要素を取り除き、その子をそのままの位置に残します
func unwrap(n *html.Node) {
	parent := n.Parent
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

// dropEmptyElements はテキストを持たない許可要素を破棄します
func dropEmptyElements(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			dropEmptyElements(c)
			if _, ok := allowedTags[c.Data]; ok && strings.TrimSpace(textContent(c)) == "" {
				n.RemoveChild(c)
			}
		}
		c = next
	}
}

// textContent は子孫のテキストノードを連結して返します
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// pruneAnchors はナビゲーション由来のリンクを取り除きます。
// 本文コンテナ直下にないリンクと、親のテキスト全体がリンクテキストと
// 一致するリンク（見出し全体リンク等）が対象です。
func pruneAnchors(doc *html.Node) {
	gq := goquery.NewDocumentFromNode(doc)
	gq.Find("a").Each(func(_ int, a *goquery.Selection) {
		parent := a.Parent()
		if _, ok := textContainerTags[goquery.NodeName(parent)]; !ok {
			a.Remove()
			return
		}
		if strings.TrimSpace(a.Text()) == strings.TrimSpace(parent.Text()) {
			a.Remove()
		}
	})
}
