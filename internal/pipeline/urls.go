package pipeline

import (
	"net/url"
	"strings"
)

// URLSeparator separates the targets of the URL variable.
const URLSeparator = ";"

// ParseURLs splits raw into the URLs to audit. Entries without an http or
// https scheme and a host are returned in dropped instead.
func ParseURLs(raw string) (urls, dropped []string) {
	for _, part := range strings.Split(raw, URLSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		u, err := url.Parse(part)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			dropped = append(dropped, part)
			continue
		}
		urls = append(urls, part)
	}
	return urls, dropped
}
