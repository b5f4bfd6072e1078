package feeds

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:media="http://search.yahoo.com/mrss/"
  xmlns:content="http://purl.org/rss/1.0/modules/content/"
  xmlns:atom="http://www.w3.org/2005/Atom"
  xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>Example Blog</title>
  <atom:link href="https://blog.example/feed.xml" rel="self" type="application/rss+xml"/>
  <link>https://blog.example/</link>
  <item>
    <title>First Post</title>
    <link>https://blog.example/first</link>
    <guid>first-guid</guid>
    <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
    <description><![CDATA[<p>Hello <b>world</b></p>]]></description>
    <content:encoded><![CDATA[<p>Full body <img src="/img/a.png"></p>]]></content:encoded>
    <media:content url="https://cdn.example/a.jpg" medium="image"/>
    <media:thumbnail url="https://cdn.example/a-thumb.jpg"/>
    <media:description>Snippet text here</media:description>
    <enclosure url="https://cdn.example/a.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>Second Post</title>
    <guid>second-guid</guid>
    <pubDate>not a date at all</pubDate>
    <itunes:summary>Podcast summary</itunes:summary>
  </item>
</channel>
</rss>`

func TestParseRSS(t *testing.T) {
	feed, err := Parse([]byte(rssFixture))
	require.NoError(t, err)

	assert.Equal(t, "Example Blog", feed.Title)
	assert.Equal(t, "https://blog.example/", feed.Link)
	require.Len(t, feed.Items, 2)

	first := feed.Items[0]
	assert.Equal(t, "First Post", first.Title)
	assert.Equal(t, "https://blog.example/first", first.Link)
	assert.Equal(t, "first-guid", first.GUID)
	assert.Equal(t, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), first.Published)
	assert.Equal(t, "<p>Hello <b>world</b></p>", first.Description)
	assert.Contains(t, first.Encoded, `<img src="/img/a.png">`)
	assert.Equal(t, "Snippet text here", first.ContentSnippet)
	require.Len(t, first.MediaContents, 1)
	assert.Equal(t, MediaItem{URL: "https://cdn.example/a.jpg", Medium: "image"}, first.MediaContents[0])
	assert.Equal(t, []string{"https://cdn.example/a-thumb.jpg"}, first.MediaThumbnails)
	assert.Equal(t, []Enclosure{{URL: "https://cdn.example/a.mp3", Type: "audio/mpeg"}}, first.Enclosures)

	second := feed.Items[1]
	assert.Empty(t, second.Link)
	assert.Equal(t, "second-guid", second.GUID)
	assert.True(t, second.Published.IsZero())
	assert.Equal(t, "Podcast summary", second.ContentSnippet)
}

const youtubeFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/" xmlns:yt="http://www.youtube.com/xml/schemas/2015">
  <title>Channel Name</title>
  <link rel="alternate" href="https://www.youtube.com/channel/abc"/>
  <entry>
    <id>yt:video:xyz</id>
    <title>Video Title</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=xyz"/>
    <published>2024-05-01T10:00:00+00:00</published>
    <media:group>
      <media:title>Video Title</media:title>
      <media:content url="https://www.youtube.com/v/xyz" type="application/x-shockwave-flash"/>
      <media:thumbnail url="https://i.ytimg.com/vi/xyz/hqdefault.jpg" width="480" height="360"/>
      <media:description>Video description</media:description>
    </media:group>
  </entry>
</feed>`

func TestParseAtomWithMediaGroup(t *testing.T) {
	feed, err := Parse([]byte(youtubeFixture))
	require.NoError(t, err)

	assert.Equal(t, "Channel Name", feed.Title)
	assert.Equal(t, "https://www.youtube.com/channel/abc", feed.Link)
	require.Len(t, feed.Items, 1)

	item := feed.Items[0]
	assert.Equal(t, "Video Title", item.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=xyz", item.Link)
	assert.Equal(t, "yt:video:xyz", item.GUID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), item.Published)
	assert.Equal(t, []string{"https://i.ytimg.com/vi/xyz/hqdefault.jpg"}, item.GroupThumbnails)
	assert.Equal(t, "Video description", item.ContentSnippet)
}

func TestParseAtomSummaryAndContent(t *testing.T) {
	doc := `<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>Entry</title>
    <link href="https://atom.example/e1"/>
    <link rel="enclosure" href="https://atom.example/e1.jpg" type="image/jpeg"/>
    <updated>2024-02-03T04:05:06Z</updated>
    <summary type="html">&lt;p&gt;Short summary&lt;/p&gt;</summary>
    <content type="xhtml"><div xmlns="http://www.w3.org/1999/xhtml"><p>Body</p></div></content>
  </entry>
</feed>`

	feed, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)

	item := feed.Items[0]
	assert.Equal(t, "https://atom.example/e1", item.Link)
	assert.Equal(t, "<p>Short summary</p>", item.Description)
	assert.Contains(t, item.Content, "<p>Body</p>")
	assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), item.Published)
	assert.Equal(t, []Enclosure{{URL: "https://atom.example/e1.jpg", Type: "image/jpeg"}}, item.Enclosures)
}

func TestParseRDFWithEncEnclosure(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
  xmlns="http://purl.org/rss/1.0/"
  xmlns:enc="http://purl.oclc.org/net/rss_2.0/enc#"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel rdf:about="https://rdf.example/">
    <title>RDF Site</title>
    <link>https://rdf.example/</link>
  </channel>
  <item rdf:about="https://rdf.example/1">
    <title>RDF Item</title>
    <link>https://rdf.example/1</link>
    <dc:date>2023-07-08T09:10:11Z</dc:date>
    <enc:enclosure rdf:resource="https://rdf.example/1.png" enc:type="image/png"/>
  </item>
</rdf:RDF>`

	feed, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "RDF Site", feed.Title)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "RDF Item", feed.Items[0].Title)
	assert.Equal(t, []string{"https://rdf.example/1.png"}, feed.Items[0].EncResources)
	assert.Equal(t, time.Date(2023, 7, 8, 9, 10, 11, 0, time.UTC), feed.Items[0].Published)
}

func TestParseLatin1(t *testing.T) {
	// "Café" encoded as ISO-8859-1.
	doc := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><rss><channel><title>Caf\xe9</title></channel></rss>")

	feed, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "Café", feed.Title)
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := Parse([]byte(`<html><body>nope</body></html>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	_, err = Parse([]byte(``))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"Tue, 02 Jan 2024 03:04:05 GMT", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"Tue, 2 Jan 2024 03:04:05 +0100", time.Date(2024, 1, 2, 2, 4, 5, 0, time.UTC)},
		{"2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"January 2, 2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"garbage", time.Time{}},
	}

	for _, tt := range tests {
		assert.True(t, tt.want.Equal(ParseDate(tt.in)), "input %q got %v", tt.in, ParseDate(tt.in))
	}
}

const rssLinksFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Links</title>
  <link>https://links.example/</link>
  <item>
    <title>One</title>
    <link>https://links.example/1</link>
    <description>First</description>
  </item>
  <item>
    <title>Two</title>
    <link>https://links.example/2</link>
    <description>Second</description>
  </item>
  <item>
    <title>Three</title>
    <link>https://links.example/3</link>
  </item>
</channel>
</rss>`

func TestParseRSSItemLinks(t *testing.T) {
	feed, err := Parse([]byte(rssLinksFixture))
	require.NoError(t, err)

	assert.Equal(t, "https://links.example/", feed.Link)
	require.Len(t, feed.Items, 3)
	for i, item := range feed.Items {
		assert.Equal(t, []string{"One", "Two", "Three"}[i], item.Title)
		assert.Equal(t, fmt.Sprintf("https://links.example/%d", i+1), item.Link)
	}
	assert.Equal(t, "Second", feed.Items[1].Description)
}
