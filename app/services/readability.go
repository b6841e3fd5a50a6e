package services

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	unlikelyCandidates = regexp.MustCompile(`(?i)banner|breadcrumbs|combx|comment|community|cover-wrap|disqus|extra|footer|gdpr|header|legends|menu|related|remark|replies|rss|shoutbox|sidebar|skyscraper|social|sponsor|supplemental|ad-break|agegate|pagination|pager|popup|yom-remote|share|promo|newsletter|cookie`)
	maybeCandidate     = regexp.MustCompile(`(?i)and|article|body|column|content|main|shadow`)
	positiveWeight     = regexp.MustCompile(`(?i)article|body|content|entry|hentry|h-entry|main|page|pagination|post|text|blog|story`)
	negativeWeight     = regexp.MustCompile(`(?i)-ad-|hidden|^hid$| hid$| hid |^hid |banner|combx|comment|com-|contact|foot|footer|footnote|gdpr|masthead|media|meta|outbrain|promo|related|scroll|share|shoutbox|sidebar|skyscraper|sponsor|shopping|tags|tool|widget`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// boilerplateTags never hold main content
var boilerplateTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true, "svg": true,
	"nav": true, "header": true, "footer": true, "aside": true, "form": true,
	"button": true, "select": true, "input": true, "template": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true,
	"blockquote": true, "br": true, "tr": true, "td": true, "table": true, "figure": true,
	"figcaption": true, "main": true, "dd": true, "dt": true, "hr": true,
}

const minReadableLength = 140

// readabilityContent scores candidate blocks and returns the text of the densest one.
// An empty string means no candidate was convincing.
func readabilityContent(doc *html.Node) string {
	body := findFirst(doc, func(n *html.Node) bool { return isElement(n, "body") })
	if body == nil {
		body = doc
	}

	scores := make(map[*html.Node]float64)
	var candidates []*html.Node

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if boilerplateTags[n.Data] {
				return
			}
			matchString := attr(n, "class") + " " + attr(n, "id")
			if unlikelyCandidates.MatchString(matchString) && !maybeCandidate.MatchString(matchString) && n.Data != "body" && n.Data != "article" {
				return
			}
			switch n.Data {
			case "p", "pre", "td", "blockquote":
				text := nodeText(n)
				if len([]rune(text)) >= 25 {
					score := 1.0 + float64(strings.Count(text, ",")+strings.Count(text, "，")) + math.Min(float64(len([]rune(text)))/100.0, 3)
					parent := n.Parent
					if parent != nil && parent.Type == html.ElementNode {
						if _, ok := scores[parent]; !ok {
							scores[parent] = initialScore(parent)
							candidates = append(candidates, parent)
						}
						scores[parent] += score
						if grand := parent.Parent; grand != nil && grand.Type == html.ElementNode {
							if _, ok := scores[grand]; !ok {
								scores[grand] = initialScore(grand)
								candidates = append(candidates, grand)
							}
							scores[grand] += score / 2
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)

	var best *html.Node
	bestScore := 0.0
	for _, c := range candidates {
		final := scores[c] * (1 - linkDensity(c))
		if best == nil || final > bestScore {
			best = c
			bestScore = final
		}
	}
	if best == nil {
		return ""
	}

	text := blockText(best)
	if len([]rune(text)) < minReadableLength {
		return ""
	}
	return text
}

// fallbackContent strips boilerplate and reads the first plausible container
func fallbackContent(doc *html.Node) string {
	selectors := []func(*html.Node) bool{
		func(n *html.Node) bool { return isElement(n, "main") },
		func(n *html.Node) bool { return isElement(n, "article") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && hasClass(n, "content") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && attr(n, "id") == "content" },
		func(n *html.Node) bool { return isElement(n, "body") },
	}
	for _, match := range selectors {
		if n := findFirst(doc, match); n != nil {
			if text := blockText(n); text != "" {
				return text
			}
		}
	}
	return blockText(doc)
}

func initialScore(n *html.Node) float64 {
	score := 0.0
	switch n.Data {
	case "div", "article", "main", "section":
		score += 5
	case "pre", "td", "blockquote":
		score += 3
	case "address", "ol", "ul", "dl", "dd", "dt", "li", "form":
		score -= 3
	case "h1", "h2", "h3", "h4", "h5", "h6", "th":
		score -= 5
	}
	for _, v := range []string{attr(n, "class"), attr(n, "id")} {
		if v == "" {
			continue
		}
		if negativeWeight.MatchString(v) {
			score -= 25
		}
		if positiveWeight.MatchString(v) {
			score += 25
		}
	}
	return score
}

func linkDensity(n *html.Node) float64 {
	total := len([]rune(nodeText(n)))
	if total == 0 {
		return 0
	}
	linkLen := 0
	forEach(n, func(c *html.Node) bool {
		if isElement(c, "a") {
			linkLen += len([]rune(nodeText(c)))
			return false
		}
		return true
	})
	return float64(linkLen) / float64(total)
}

// nodeText concatenates the text under n, skipping boilerplate tags
func nodeText(n *html.Node) string {
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && boilerplateTags[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// blockText is nodeText that keeps paragraph breaks between block elements
func blockText(n *html.Node) string {
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(whitespaceRun.ReplaceAllString(n.Data, " "))
			return
		case html.ElementNode:
			if boilerplateTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// forEach visits n and its descendants; returning false skips the children of a node
func forEach(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		forEach(c, fn)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	forEach(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}
