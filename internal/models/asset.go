package models

// Asset is a reference to a binary stored in the media store.
type Asset struct {
	PublicID string `json:"public_id" bson:"public_id"`
	URL      string `json:"url" bson:"url"`
}

// IsZero reports whether the asset was never set.
func (a Asset) IsZero() bool {
	return a.PublicID == "" && a.URL == ""
}
