package storage

import (
	"net/url"
	"strings"
)

const (
	viewPrefix         = "/filebrowser/view"
	relativeViewPrefix = "/filebrowser/home_relative_view/"
)

// OutputLink maps an output location to a file-browser link. Absolute paths
// are viewed directly, relative ones against the user's home. A full URL is
// reduced to its path first. An empty location yields "".
func OutputLink(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		location = u.Path
		if location == "" {
			return ""
		}
	}
	if strings.HasPrefix(location, "/") {
		return viewPrefix + location
	}
	return relativeViewPrefix + location
}
