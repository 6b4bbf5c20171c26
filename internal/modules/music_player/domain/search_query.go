package domain

import (
	"net/url"
	"strings"
)

// SearchSource selects where free-text queries are searched.
type SearchSource string

const (
	SourceYouTube    SearchSource = "youtube"
	SourceSoundCloud SearchSource = "soundcloud"
)

// prefix returns the resolver search prefix. Unknown sources search YouTube.
func (s SearchSource) prefix() string {
	if s == SourceSoundCloud {
		return "scsearch"
	}
	return "ytsearch"
}

// DisplayName returns the human-readable name of the source.
func (s SearchSource) DisplayName() string {
	if s == SourceSoundCloud {
		return "SoundCloud"
	}
	return "YouTube"
}

// SearchQuery is user input normalized for a track resolver.
// It is either a direct http(s) URL or a search term on a SearchSource.
type SearchQuery struct {
	term   string
	source SearchSource
	isURL  bool
}

// NewSearchQuery normalizes input. Inputs starting with "www." are completed
// to https URLs, and source is ignored for URLs.
func NewSearchQuery(input string, source SearchSource) SearchQuery {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "www.") {
		input = "https://" + input
	}

	if isHTTPURL(input) {
		return SearchQuery{term: input, isURL: true}
	}
	if source == "" {
		source = SourceYouTube
	}
	return SearchQuery{term: input, source: source}
}

// Term returns the search term or URL.
func (q SearchQuery) Term() string { return q.term }

// Source returns the search source, or "" for URLs.
func (q SearchQuery) Source() SearchSource { return q.source }

// IsURL reports whether the query is a direct URL.
func (q SearchQuery) IsURL() bool { return q.isURL }

// IsEmpty reports whether there is nothing to resolve.
func (q SearchQuery) IsEmpty() bool { return q.term == "" }

// String returns the bare URL, or "<prefix>:<term>" for searches.
// Lavalink and yt-dlp both accept this form.
func (q SearchQuery) String() string {
	if q.isURL {
		return q.term
	}
	return q.source.prefix() + ":" + q.term
}

func isHTTPURL(input string) bool {
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
