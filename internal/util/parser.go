package util

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseLinks returns the href of every <a> element accepted by match, in
// document order. It performs a depth-first search from n.
func ParseLinks(n *html.Node, match func(href string) bool) []string {
	var out []string
	var walk func(*html.Node)

	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key == "href" {
					if a.Val != "/" && match(a.Val) {
						out = append(out, a.Val)
					}
					break
				}
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}

// HrefContains matches hrefs containing marker, ignoring case.
func HrefContains(marker string) func(string) bool {
	marker = strings.ToLower(marker)
	return func(href string) bool {
		return strings.Contains(strings.ToLower(href), marker)
	}
}
