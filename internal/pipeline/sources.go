package pipeline

import "strings"

const linkPrefix = "Link:"

// ExtractLinks returns the URLs on "Link:" lines of the given records,
// unique and in first-seen order. Records without a link contribute nothing.
func ExtractLinks(results []string) []string {
	var links []string
	for _, record := range results {
		for _, line := range strings.Split(record, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, linkPrefix) {
				continue
			}
			link := strings.TrimSpace(strings.TrimPrefix(line, linkPrefix))
			if link == "" || link == "None" {
				continue
			}
			links = AppendUnique(links, link)
		}
	}
	return links
}

// AppendUnique appends the values not already in dst, preserving order.
func AppendUnique(dst []string, values ...string) []string {
	if len(values) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

// FormatResult renders one search hit as a research record.
func FormatResult(title, link, snippet string) string {
	return "Title: " + title + "\n" + linkPrefix + " " + link + "\nSnippet: " + snippet
}
