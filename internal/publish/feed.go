package publish

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"readcast/internal/config"
	"readcast/internal/records"
)

// FeedRenderer produces the podcast RSS document from the published set.
// Artifact locations are stored relative to the bucket and joined with the
// public base URL only here, so changing hosts never requires rewriting
// records.
type FeedRenderer struct {
	settings      config.Feed
	publicBaseURL string
}

// NewFeedRenderer creates a renderer bound to the feed settings and the
// public host the bucket is served from.
func NewFeedRenderer(settings config.Feed, publicBaseURL string) *FeedRenderer {
	return &FeedRenderer{
		settings:      settings,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Render builds the full RSS 2.0 document for the given published records.
// Episodes are ordered newest first. Records without an artifact location are
// skipped rather than rendered with a dead link. withArtwork adds the channel
// itunes:image tag; callers pass it based on whether the artwork object
// actually exists in the bucket.
func (r *FeedRenderer) Render(published []*records.Record, now time.Time, withArtwork bool) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	writeElement(&buf, "title", r.settings.Title, 4)
	writeElement(&buf, "link", r.publicBaseURL, 4)
	writeElement(&buf, "description", r.settings.Description, 4)
	writeElement(&buf, "language", r.settings.Language, 4)
	writeElement(&buf, "lastBuildDate", now.UTC().Format(time.RFC1123Z), 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(r.AbsoluteURL(FeedKey))))

	writeElement(&buf, "itunes:author", r.settings.Author, 4)
	writeElement(&buf, "itunes:summary", r.settings.Description, 4)
	writeElement(&buf, "itunes:explicit", r.settings.Explicit, 4)
	if withArtwork {
		buf.WriteString(fmt.Sprintf("    <itunes:image href=\"%s\" />\n",
			html.EscapeString(r.AbsoluteURL(ArtworkKey))))
	}
	if r.settings.Category != "" {
		buf.WriteString(fmt.Sprintf("    <itunes:category text=\"%s\" />\n",
			html.EscapeString(r.settings.Category)))
	}
	if r.settings.Author != "" {
		buf.WriteString("    <itunes:owner>\n")
		writeElement(&buf, "itunes:name", r.settings.Author, 6)
		buf.WriteString("    </itunes:owner>\n")
	}

	for _, record := range published {
		if record == nil || record.ArtifactLocation == "" {
			continue
		}
		r.writeItem(&buf, record)
	}

	buf.WriteString("  </channel>\n</rss>\n")
	return buf.String()
}

func (r *FeedRenderer) writeItem(buf *bytes.Buffer, record *records.Record) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(record.SourceID))
	buf.WriteString("</guid>\n")

	writeElement(buf, "title", record.Title, 6)
	writeElement(buf, "link", record.OriginalURL, 6)

	writeElement(buf, "description", showNotes(record), 6)
	writeElement(buf, "itunes:author", record.Author, 6)

	plainSummary := record.Summary
	if plainSummary == "" {
		plainSummary = "Audio rendition of " + record.OriginalURL
	}
	writeElement(buf, "itunes:summary", plainSummary, 6)

	if record.PublishedAt != nil {
		writeElement(buf, "pubDate", record.PublishedAt.UTC().Format(time.RFC1123Z), 6)
	}

	buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"%d\" type=\"audio/mpeg\" />\n",
		html.EscapeString(r.AbsoluteURL(record.ArtifactLocation)),
		record.ArtifactBytes))

	buf.WriteString("    </item>\n")
}

// showNotes builds the HTML episode description: summary, byline, and a link
// back to the source article. The markup ends up XML-escaped in the document;
// feed readers unescape it again.
func showNotes(record *records.Record) string {
	var parts []string
	if record.Summary != "" {
		parts = append(parts, "<p>"+html.EscapeString(record.Summary)+"</p>")
	}
	if record.Author != "" {
		parts = append(parts, "<p>By "+html.EscapeString(record.Author)+"</p>")
	}
	if record.OriginalURL != "" {
		parts = append(parts, "<p><a href=\""+html.EscapeString(record.OriginalURL)+"\">Read the original article</a></p>")
	}
	if len(parts) == 0 {
		return "Audio rendition of a saved article."
	}
	return strings.Join(parts, "\n")
}

// AbsoluteURL joins a bucket-relative location with the public base URL.
func (r *FeedRenderer) AbsoluteURL(location string) string {
	return r.publicBaseURL + "/" + strings.TrimLeft(location, "/")
}

func writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
