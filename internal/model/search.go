package model

// SearchResult is one web-search hit. Link is the dedup key within a
// single search pass.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// ClassifiedLinks partitions a search-result list into direct company
// pages and aggregator/portal pages. Every element of the classifier's
// input appears in at most one of the two lists.
type ClassifiedLinks struct {
	CompanyURLs []SearchResult `json:"companyUrls"`
	PortalURLs  []SearchResult `json:"portalUrls"`
}

// Links extracts the bare URLs from a result list.
func Links(results []SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Link)
	}
	return out
}

// DedupeByLink removes duplicate links keeping the last occurrence,
// preserving first-seen order of the surviving keys.
func DedupeByLink(results []SearchResult) []SearchResult {
	byLink := make(map[string]SearchResult, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		if _, seen := byLink[r.Link]; !seen {
			order = append(order, r.Link)
		}
		byLink[r.Link] = r
	}
	out := make([]SearchResult, 0, len(order))
	for _, link := range order {
		out = append(out, byLink[link])
	}
	return out
}
