package importer

import (
	"net/url"
	"strings"
)

// PageType classifies a YouTube page.
type PageType string

const (
	PagePlaylist      PageType = "playlist"
	PagePlaylistVideo PageType = "playlist_video"
	PageVideo         PageType = "video"
	PageChannel       PageType = "channel"
	PageNone          PageType = ""
)

// DetectPageType reports what kind of YouTube page u is. Non-YouTube URLs
// and unrecognised paths give PageNone.
func DetectPageType(u string) PageType {
	if !strings.Contains(u, "youtube.com") {
		return PageNone
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return PageNone
	}
	switch {
	case strings.Contains(u, "/playlist"):
		return PagePlaylist
	case strings.Contains(u, "/watch") && parsed.Query().Has("list"):
		return PagePlaylistVideo
	case strings.Contains(u, "/watch"):
		return PageVideo
	case strings.Contains(u, "/@"), strings.Contains(u, "/channel/"), strings.Contains(u, "/c/"):
		return PageChannel
	}
	return PageNone
}

// Label is a short human description of the page type.
func (p PageType) Label() string {
	switch p {
	case PagePlaylist:
		return "YouTube playlist"
	case PagePlaylistVideo:
		return "YouTube video from a playlist"
	case PageVideo:
		return "YouTube video"
	case PageChannel:
		return "YouTube channel"
	}
	return ""
}
