// Package feeds provides RSS/Atom feed parsing including the media, enclosure
// and podcast extensions used for thumbnails and summaries.
package feeds

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/net/html/charset"
)

// ErrUnknownFormat is returned when the document root is not rss, rdf:RDF or feed.
var ErrUnknownFormat = errors.New("unknown feed format")

const nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// Feed is a parsed feed, independent of its wire format.
type Feed struct {
	Title string
	Link  string
	Items []Item
}

// Item is one feed entry with every field the normalizer may draw from.
type Item struct {
	Title     string
	Link      string
	GUID      string
	Published time.Time // zero when missing or unparseable

	ContentSnippet string // media:description or itunes:summary
	Description    string // RSS description or Atom summary
	Content        string // Atom content
	Encoded        string // content:encoded

	GroupThumbnails []string    // media:group/media:thumbnail
	MediaContents   []MediaItem // media:content
	MediaThumbnails []string    // media:thumbnail
	EncResources    []string    // enc:enclosure rdf:resource
	Enclosures      []Enclosure // enclosure
}

// MediaItem is a media:content element.
type MediaItem struct {
	URL    string
	Medium string
	Type   string
}

// Enclosure is an RSS enclosure.
type Enclosure struct {
	URL  string
	Type string
}

type mediaThumbnail struct {
	URL string `xml:"url,attr"`
}

type mediaContent struct {
	URL        string           `xml:"url,attr"`
	Medium     string           `xml:"medium,attr"`
	Type       string           `xml:"type,attr"`
	Thumbnails []mediaThumbnail `xml:"http://search.yahoo.com/mrss/ thumbnail"`
}

type mediaGroup struct {
	Thumbnails  []mediaThumbnail `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	Contents    []mediaContent   `xml:"http://search.yahoo.com/mrss/ content"`
	Description string           `xml:"http://search.yahoo.com/mrss/ description"`
}

type encEnclosure struct {
	Resource string `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# resource,attr"`
	URL      string `xml:"url,attr"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// Namespaced fields come first: encoding/xml assigns an element to the first
// field whose name matches, and unqualified tags match any namespace.
type rssItem struct {
	MediaGroup       *mediaGroup      `xml:"http://search.yahoo.com/mrss/ group"`
	MediaContents    []mediaContent   `xml:"http://search.yahoo.com/mrss/ content"`
	MediaThumbnails  []mediaThumbnail `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	MediaDescription string           `xml:"http://search.yahoo.com/mrss/ description"`
	MediaTitle       string           `xml:"http://search.yahoo.com/mrss/ title"`
	EncEnclosures    []encEnclosure   `xml:"http://purl.oclc.org/net/rss_2.0/enc# enclosure"`
	Encoded          string           `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	ITunesSummary    string           `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd summary"`
	AtomLinks        []atomLink       `xml:"http://www.w3.org/2005/Atom link"`
	DCDate           string           `xml:"http://purl.org/dc/elements/1.1/ date"`

	Title       string         `xml:"title"`
	Link        string         `xml:"link"`
	Description string         `xml:"description"`
	PubDate     string         `xml:"pubDate"`
	GUID        string         `xml:"guid"`
	Enclosures  []rssEnclosure `xml:"enclosure"`
}

type rssChannel struct {
	AtomLinks []atomLink `xml:"http://www.w3.org/2005/Atom link"`
	Title     string     `xml:"title"`
	Link      string     `xml:"link"`
	Items     []rssItem  `xml:"item"`
}

type rssDoc struct {
	Channel rssChannel `xml:"channel"`
}

// rdfDoc is RSS 1.0: items are siblings of the channel.
type rdfDoc struct {
	Channel rssChannel `xml:"channel"`
	Items   []rssItem  `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type atomText struct {
	Type  string `xml:"type,attr"`
	Body  string `xml:",chardata"`
	Inner string `xml:",innerxml"`
}

func (t *atomText) String() string {
	if t == nil {
		return ""
	}
	if t.Type == "xhtml" {
		return strings.TrimSpace(t.Inner)
	}
	return strings.TrimSpace(t.Body)
}

type atomEntry struct {
	MediaGroup       *mediaGroup      `xml:"http://search.yahoo.com/mrss/ group"`
	MediaContents    []mediaContent   `xml:"http://search.yahoo.com/mrss/ content"`
	MediaThumbnails  []mediaThumbnail `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	MediaDescription string           `xml:"http://search.yahoo.com/mrss/ description"`
	MediaTitle       string           `xml:"http://search.yahoo.com/mrss/ title"`
	ITunesSummary    string           `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd summary"`

	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   *atomText  `xml:"summary"`
	Content   *atomText  `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	ID        string     `xml:"id"`
}

type atomDoc struct {
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

// Parse decodes an RSS 2.0, RSS 1.0 (RDF) or Atom document. Non-UTF-8 encodings
// declared in the XML prolog are converted.
func Parse(data []byte) (*Feed, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader is Parse over a reader.
func ParseReader(r io.Reader) (*Feed, error) {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrUnknownFormat
			}
			return nil, fmt.Errorf("failed to read feed: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch {
		case start.Name.Local == "rss":
			var doc rssDoc
			if err := d.DecodeElement(&doc, &start); err != nil {
				return nil, fmt.Errorf("failed to decode RSS: %w", err)
			}
			return convertRSS(doc.Channel, doc.Channel.Items), nil
		case start.Name.Local == "RDF" && (start.Name.Space == nsRDF || start.Name.Space == ""):
			var doc rdfDoc
			if err := d.DecodeElement(&doc, &start); err != nil {
				return nil, fmt.Errorf("failed to decode RDF: %w", err)
			}
			items := doc.Items
			if len(items) == 0 {
				items = doc.Channel.Items
			}
			return convertRSS(doc.Channel, items), nil
		case start.Name.Local == "feed":
			var doc atomDoc
			if err := d.DecodeElement(&doc, &start); err != nil {
				return nil, fmt.Errorf("failed to decode Atom: %w", err)
			}
			return convertAtom(doc), nil
		default:
			return nil, fmt.Errorf("%w: root element <%s>", ErrUnknownFormat, start.Name.Local)
		}
	}
}

func convertRSS(ch rssChannel, items []rssItem) *Feed {
	feed := &Feed{
		Title: strings.TrimSpace(ch.Title),
		Link:  strings.TrimSpace(ch.Link),
	}
	if feed.Link == "" {
		feed.Link = alternateLink(ch.AtomLinks)
	}

	for _, it := range items {
		item := Item{
			Title:       strings.TrimSpace(firstNonEmpty(it.Title, it.MediaTitle)),
			Link:        strings.TrimSpace(it.Link),
			GUID:        strings.TrimSpace(it.GUID),
			Published:   ParseDate(firstNonEmpty(it.PubDate, it.DCDate)),
			Description: strings.TrimSpace(it.Description),
			Encoded:     strings.TrimSpace(it.Encoded),
		}
		if item.Link == "" {
			item.Link = alternateLink(it.AtomLinks)
		}
		applyMedia(&item, it.MediaGroup, it.MediaContents, it.MediaThumbnails)
		item.ContentSnippet = strings.TrimSpace(firstNonEmpty(it.MediaDescription, groupDescription(it.MediaGroup), it.ITunesSummary))

		for _, e := range it.EncEnclosures {
			if res := strings.TrimSpace(firstNonEmpty(e.Resource, e.URL)); res != "" {
				item.EncResources = append(item.EncResources, res)
			}
		}
		for _, e := range it.Enclosures {
			if u := strings.TrimSpace(e.URL); u != "" {
				item.Enclosures = append(item.Enclosures, Enclosure{URL: u, Type: strings.TrimSpace(e.Type)})
			}
		}
		feed.Items = append(feed.Items, item)
	}
	return feed
}

func convertAtom(doc atomDoc) *Feed {
	feed := &Feed{
		Title: strings.TrimSpace(doc.Title),
		Link:  alternateLink(doc.Links),
	}

	for _, e := range doc.Entries {
		item := Item{
			Title:       strings.TrimSpace(firstNonEmpty(e.Title, e.MediaTitle)),
			Link:        alternateLink(e.Links),
			GUID:        strings.TrimSpace(e.ID),
			Published:   ParseDate(firstNonEmpty(e.Published, e.Updated)),
			Description: e.Summary.String(),
			Content:     e.Content.String(),
		}
		applyMedia(&item, e.MediaGroup, e.MediaContents, e.MediaThumbnails)
		item.ContentSnippet = strings.TrimSpace(firstNonEmpty(e.MediaDescription, groupDescription(e.MediaGroup), e.ITunesSummary))

		for _, l := range e.Links {
			if l.Rel == "enclosure" && strings.TrimSpace(l.Href) != "" {
				item.Enclosures = append(item.Enclosures, Enclosure{URL: strings.TrimSpace(l.Href), Type: l.Type})
			}
		}
		feed.Items = append(feed.Items, item)
	}
	return feed
}

func applyMedia(item *Item, group *mediaGroup, contents []mediaContent, thumbs []mediaThumbnail) {
	if group != nil {
		for _, th := range group.Thumbnails {
			if u := strings.TrimSpace(th.URL); u != "" {
				item.GroupThumbnails = append(item.GroupThumbnails, u)
			}
		}
		contents = append(contents, group.Contents...)
	}
	for _, c := range contents {
		if u := strings.TrimSpace(c.URL); u != "" {
			item.MediaContents = append(item.MediaContents, MediaItem{URL: u, Medium: c.Medium, Type: c.Type})
		}
		thumbs = append(thumbs, c.Thumbnails...)
	}
	for _, th := range thumbs {
		if u := strings.TrimSpace(th.URL); u != "" {
			item.MediaThumbnails = append(item.MediaThumbnails, u)
		}
	}
}

func groupDescription(g *mediaGroup) string {
	if g == nil {
		return ""
	}
	return g.Description
}

// alternateLink picks the rel=alternate (or rel-less) link, else the first link.
func alternateLink(links []atomLink) string {
	for _, l := range links {
		if (l.Rel == "" || l.Rel == "alternate") && strings.TrimSpace(l.Href) != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	for _, l := range links {
		if l.Rel != "self" && l.Rel != "enclosure" && strings.TrimSpace(l.Href) != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ParseDate parses the date formats found in feeds. The zero time means unknown.
func ParseDate(dateStr string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339,
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC()
		}
	}

	if t, err := dateparse.ParseIn(dateStr, time.UTC); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
