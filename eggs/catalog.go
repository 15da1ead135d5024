package eggs

import "slices"

var albums = []string{
	"Taylor Swift",
	"Fearless",
	"Speak Now",
	"Red",
	"1989",
	"Reputation",
	"Lover",
	"Folklore",
	"Evermore",
	"Midnights",
	"TTPD",
	"The Life of a Showgirl",
}

var mediaTypes = []string{
	"Album Art",
	"Music Video",
	"Music",
	"Performance",
	"Interview",
	"Social Media",
	"Other",
}

var clueTypes = []string{
	"Visual",
	"Color",
	"Symbol",
	"Time",
	"Number",
	"Lyrics",
	"Fashion",
	"Other",
}

// Catalog lists the values accepted for an egg's album, media type and clue type.
type Catalog struct {
	Albums     []string `json:"albums"`
	MediaTypes []string `json:"media_types"`
	ClueTypes  []string `json:"clue_types"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Albums:     slices.Clone(albums),
		MediaTypes: slices.Clone(mediaTypes),
		ClueTypes:  slices.Clone(clueTypes),
	}
}

// validate checks optional catalog fields; empty values are allowed.
func (c Catalog) validate(album, mediaType, clueType string) error {
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{field: "album", value: album, allowed: c.Albums},
		{field: "media_type", value: mediaType, allowed: c.MediaTypes},
		{field: "clue_type", value: clueType, allowed: c.ClueTypes},
	}

	for _, check := range checks {
		if check.value != "" && !slices.Contains(check.allowed, check.value) {
			return InvalidCatalogValueError{Field: check.field, Value: check.value}
		}
	}

	return nil
}
