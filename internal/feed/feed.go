package feed

import (
	"time"

	"github.com/google/uuid"
)

// Feed is one configured TAXII subscription. Feeds carry a generated id so
// that deletion does not have to rely on list position, but duplicates by
// name or URL are deliberately allowed and list order is preserved for
// display.
type Feed struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	APIRootURL      string `json:"api_root_url"`
	CollectionTitle string `json:"collection_title"`
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	Added           string `json:"added"`
}

const addedLayout = "2006-01-02 15:04:05"

// New builds a Feed with a fresh id and the current timestamp. An empty
// name gets a placeholder label.
func New(name, apiRootURL, collectionTitle, username, password string) Feed {
	if name == "" {
		name = "Unnamed Feed"
	}
	return Feed{
		ID:              uuid.New().String(),
		Name:            name,
		APIRootURL:      apiRootURL,
		CollectionTitle: collectionTitle,
		Username:        username,
		Password:        password,
		Added:           time.Now().Format(addedLayout),
	}
}
