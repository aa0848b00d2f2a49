// Package resource finds media links in message text and resolves them to
// resource ids.
package resource

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// urlPattern may swallow trailing punctuation.
var urlPattern = regexp.MustCompile(`http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)

// lineBreak splits text at every line boundary Unicode text recognizes,
// including a bare carriage return.
var lineBreak = regexp.MustCompile(`\r\n|[\n\r\v\f\x1c-\x1e\x{85}\x{2028}\x{2029}]`)

const quotePrefix = ">"

// Config selects the patterns a URL must match to carry a resource id.
type Config struct {
	// QueryParam is the query parameter holding the id, as in watch?v=<id>.
	QueryParam string `mapstructure:"query_param"`
	// ShortHosts are hosts whose first path segment onward is the id. They are
	// pattern fragments, so an unescaped dot matches any character.
	ShortHosts []string `mapstructure:"short_hosts"`
}

// DefaultConfig matches long and short video links.
func DefaultConfig() Config {
	return Config{QueryParam: "v", ShortHosts: []string{"youtu.be"}}
}

// Extractor scans text for URLs and resolves resource ids.
type Extractor struct {
	idPattern *regexp.Regexp
	query     int
	path      int
}

// New compiles the resource id patterns described by cfg.
func New(cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.QueryParam) == "" {
		return nil, errors.New("resource: query param is required")
	}
	alternatives := []string{regexp.QuoteMeta(cfg.QueryParam) + `=(?P<query>[^&]*)`}
	hosts := make([]string, 0, len(cfg.ShortHosts))
	for _, host := range cfg.ShortHosts {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) > 0 {
		alternatives = append(alternatives, `(?:`+strings.Join(hosts, "|")+`)/(?P<path>.*)`)
	}
	re, err := regexp.Compile(strings.Join(alternatives, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile resource pattern: %w", err)
	}
	return &Extractor{
		idPattern: re,
		query:     re.SubexpIndex("query"),
		path:      re.SubexpIndex("path"),
	}, nil
}

// ExtractURLs returns the distinct URLs in text, sorted. Lines starting with
// the quote marker are reply context and are skipped.
func (e *Extractor) ExtractURLs(text string) []string {
	seen := make(map[string]struct{})
	for _, line := range lineBreak.Split(text, -1) {
		if strings.HasPrefix(line, quotePrefix) {
			continue
		}
		for _, url := range urlPattern.FindAllString(line, -1) {
			seen[url] = struct{}{}
		}
	}
	urls := make([]string, 0, len(seen))
	for url := range seen {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// ResolveID returns the resource id carried by url. The query form wins when
// both forms match at the same position.
func (e *Extractor) ResolveID(url string) (string, bool) {
	m := e.idPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	if id := group(m, e.query); id != "" {
		return id, true
	}
	if id := group(m, e.path); id != "" {
		return id, true
	}
	return "", false
}

// References extracts every URL in text with its resolved id, if any.
func (e *Extractor) References(text string) []archive.ResourceReference {
	urls := e.ExtractURLs(text)
	refs := make([]archive.ResourceReference, 0, len(urls))
	for _, url := range urls {
		id, _ := e.ResolveID(url)
		refs = append(refs, archive.ResourceReference{URL: url, ID: id})
	}
	return refs
}

func group(m []string, idx int) string {
	if idx < 0 || idx >= len(m) {
		return ""
	}
	return m[idx]
}
