// Package feed implements FeedRequester: an HTTP requester whose
// response is routed through the XML tree converter, then dispatched to
// an RSS 2.0, Atom, or RSS 1.0/RDF parser based on the document's root
// element.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/senatoreg/pyfreeflow/xmltree"
)

// relaxedLayouts covers RFC 822 and ISO 8601 plus the handful of named
// timezone abbreviations feeds commonly use in place of a numeric
// offset (none of which time.Parse resolves on its own).
var relaxedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

var namedZones = map[string]string{
	"UT":  "+0000",
	"GMT": "+0000",
	"UTC": "+0000",
	"EST": "-0500",
	"EDT": "-0400",
	"CST": "-0600",
	"CDT": "-0500",
	"MST": "-0700",
	"MDT": "-0600",
	"PST": "-0800",
	"PDT": "-0700",
}

// ParseDate parses an RFC 822/ISO 8601 date string, substituting a
// trailing named timezone abbreviation with its numeric offset first.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for name, offset := range namedZones {
		if strings.HasSuffix(s, " "+name) {
			s = strings.TrimSuffix(s, " "+name) + " " + offset
			break
		}
	}

	var lastErr error
	for _, layout := range relaxedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("feed: cannot parse date %q: %w", raw, lastErr)
}

// Entry is a normalized feed item, merging fields from whichever
// vocabulary (RSS 2.0, Atom, RDF/RSS 1.0) the source document used.
type Entry struct {
	Title     string         `json:"title,omitempty"`
	Link      string         `json:"link,omitempty"`
	Published string         `json:"published,omitempty"`
	Updated   string         `json:"updated,omitempty"`
	Author    string         `json:"author,omitempty"`
	Content   string         `json:"content,omitempty"`
	Media     []string       `json:"media,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Feed is a normalized feed document.
type Feed struct {
	Title   string  `json:"title,omitempty"`
	Link    string  `json:"link,omitempty"`
	Updated string  `json:"updated,omitempty"`
	Entries []Entry `json:"entry,omitempty"`
}

// Parse routes root to the RSS 2.0, Atom, or RDF/RSS 1.0 parser based
// on its tag name.
func Parse(root *xmltree.Node, tag string) (*Feed, error) {
	switch localName(tag) {
	case "rss":
		return parseRSS2(root)
	case "feed":
		return parseAtom(root)
	case "rdf", "RDF":
		return parseRDF(root)
	default:
		return nil, fmt.Errorf("feed: unrecognized root element %q", tag)
	}
}

func localName(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

func firstChild(n *xmltree.Node, names ...string) *xmltree.Node {
	if n == nil {
		return nil
	}
	for _, name := range names {
		if kids, ok := n.Elem[name]; ok && len(kids) > 0 {
			return kids[0]
		}
	}
	return nil
}

func allChildren(n *xmltree.Node, names ...string) []*xmltree.Node {
	if n == nil {
		return nil
	}
	var out []*xmltree.Node
	for _, name := range names {
		out = append(out, n.Elem[name]...)
	}
	return out
}

func text(n *xmltree.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text)
}

func attr(n *xmltree.Node, name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// parseRSS2 extracts the RSS 2.0 core vocabulary plus the Dublin Core
// (dc:*) and Media RSS (media:*) namespaces commonly layered on top.
func parseRSS2(root *xmltree.Node) (*Feed, error) {
	channel := firstChild(root, "channel")
	if channel == nil {
		return nil, fmt.Errorf("feed: rss document missing channel")
	}

	f := &Feed{
		Title: text(firstChild(channel, "title")),
		Link:  text(firstChild(channel, "link")),
	}
	if d := firstChild(channel, "lastBuildDate", "pubDate"); d != nil {
		f.Updated = text(d)
	}

	for _, item := range allChildren(channel, "item") {
		e := Entry{
			Title:     text(firstChild(item, "title")),
			Link:      text(firstChild(item, "link")),
			Published: text(firstChild(item, "pubDate", "dc:date")),
			Author:    text(firstChild(item, "author", "dc:creator")),
			Content:   text(firstChild(item, "description", "content:encoded")),
		}
		for _, m := range allChildren(item, "media:content", "media:thumbnail") {
			if url := attr(m, "url"); url != "" {
				e.Media = append(e.Media, url)
			}
		}
		f.Entries = append(f.Entries, e)
	}
	return f, nil
}

// parseAtom extracts the Atom vocabulary, including the iTunes
// namespace's summary/author extensions where present.
func parseAtom(root *xmltree.Node) (*Feed, error) {
	f := &Feed{
		Title:   text(firstChild(root, "title")),
		Updated: text(firstChild(root, "updated")),
	}
	if link := firstChild(root, "link"); link != nil {
		if href := attr(link, "href"); href != "" {
			f.Link = href
		} else {
			f.Link = text(link)
		}
	}

	for _, entry := range allChildren(root, "entry") {
		e := Entry{
			Title:     text(firstChild(entry, "title")),
			Published: text(firstChild(entry, "published")),
			Updated:   text(firstChild(entry, "updated")),
			Content:   text(firstChild(entry, "content", "summary", "itunes:summary")),
		}
		if link := firstChild(entry, "link"); link != nil {
			if href := attr(link, "href"); href != "" {
				e.Link = href
			} else {
				e.Link = text(link)
			}
		}
		if author := firstChild(entry, "author"); author != nil {
			e.Author = text(firstChild(author, "name"))
		}
		f.Entries = append(f.Entries, e)
	}
	return f, nil
}

// parseRDF extracts the RSS 1.0/RDF vocabulary (items are siblings of
// channel, not nested inside it).
func parseRDF(root *xmltree.Node) (*Feed, error) {
	channel := firstChild(root, "channel")
	f := &Feed{
		Title: text(firstChild(channel, "title")),
		Link:  text(firstChild(channel, "link")),
	}

	for _, item := range allChildren(root, "item") {
		e := Entry{
			Title:     text(firstChild(item, "title")),
			Link:      text(firstChild(item, "link")),
			Published: text(firstChild(item, "dc:date")),
			Author:    text(firstChild(item, "dc:creator")),
			Content:   text(firstChild(item, "description")),
		}
		f.Entries = append(f.Entries, e)
	}
	return f, nil
}
