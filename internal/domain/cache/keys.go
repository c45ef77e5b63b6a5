package cache

import "strings"

// DefaultSeparator joins the site and the ID in physical keys.
const DefaultSeparator = ":"

// namespace builds the physical keys of one site.
type namespace struct {
	site string
	sep  string
}

func (n namespace) prefix() string {
	return n.site + n.sep
}

// entryKey returns site + separator + id.
func (n namespace) entryKey(id string) string {
	return n.prefix() + id
}

// tagKey returns site + separator + tag.
func (n namespace) tagKey(tag string) string {
	return n.prefix() + tag
}

// stripKey returns the ID or tag part of a key, or false when the key
// belongs to another site.
func (n namespace) stripKey(key string) (string, bool) {
	if !strings.HasPrefix(key, n.prefix()) {
		return "", false
	}
	rest := key[len(n.prefix()):]
	return rest, rest != ""
}
