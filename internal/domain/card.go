package domain

// Field is one label/value pair rendered under a preview card.
type Field struct {
	Label string
	Value string
}

// PreviewCard is the normalized preview an adapter produces for one link.
//
// A card is built fresh for every request and is not mutated once returned.
type PreviewCard struct {
	// Title is the bold first line of the card.
	Title string

	// TitleLink is the original shared URL.
	TitleLink string

	// Body is the truncated description text.
	Body string

	// AccentColor is the hex color of the card's side bar (ex: #A00F1B).
	AccentColor string

	// Fields may be empty.
	Fields []Field
}

// UnfurlResult maps a shared URL to its preview card.
// Keys are unique: one card per URL.
type UnfurlResult map[string]*PreviewCard

// URLs returns the keys of the result.
func (r UnfurlResult) URLs() []string {
	urls := make([]string, 0, len(r))
	for u := range r {
		urls = append(urls, u)
	}
	return urls
}
