package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Section headings used in topic descriptions.
const (
	SectionExpectedOutcome = "Expected Outcome"
	SectionScope           = "Scope"
)

const headingBoundary = "span.topicdescriptionkind, :has(span.topicdescriptionkind)"

// DescriptionSections splits a topic's descriptionByte HTML into its headed
// sections. Headings are span.topicdescriptionkind elements; a section is the
// paragraphs and list items between one heading and the next. List items are
// rendered as "- item" lines.
func DescriptionSections(html string) (map[string]string, error) {
	sections := make(map[string]string)
	if strings.TrimSpace(html) == "" {
		return sections, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse description html")
	}

	doc.Find("span.topicdescriptionkind").Each(func(_ int, heading *goquery.Selection) {
		key := strings.TrimSpace(strings.ReplaceAll(nodeText(heading), ":", ""))
		if key == "" {
			return
		}
		// Headings are often wrapped in their own paragraph; the section then
		// follows the wrapper.
		anchor := heading
		if heading.NextAll().Length() == 0 && goquery.NodeName(heading.Parent()) == "p" {
			anchor = heading.Parent()
		}
		var lines []string
		anchor.NextUntil(headingBoundary).Each(func(_ int, s *goquery.Selection) {
			switch goquery.NodeName(s) {
			case "p":
				if txt := nodeText(s); txt != "" {
					lines = append(lines, txt)
				}
			case "ul", "ol":
				s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
					lines = append(lines, "- "+nodeText(li))
				})
			case "li":
				lines = append(lines, "- "+nodeText(s))
			}
		})
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text != "" || sections[key] == "" {
			sections[key] = text
		}
	})
	return sections, nil
}

// nodeText joins the text nodes under s with single spaces.
func nodeText(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			parts = append(parts, c.Text())
			return
		}
		parts = append(parts, nodeText(c))
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
