package taxii

import (
	"context"
	"log"
	"strings"
)

// discoveryResource is the server's top-level discovery document.
type discoveryResource struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Default     string   `json:"default"`
	APIRoots    []string `json:"api_roots"`
}

// apiRootResource is the document served at an API root URL.
type apiRootResource struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DiscoverAPIRoots queries a server's discovery resource and describes each
// advertised API root. Roots that fail to answer still appear in the result
// with a placeholder description, so the caller can offer them for selection.
func DiscoverAPIRoots(ctx context.Context, serverURL, username, password string, logger *log.Logger) ([]APIRoot, error) {
	c := NewClient(Config{
		APIRootURL: serverURL,
		Username:   username,
		Password:   password,
		Logger:     logger,
	})

	url := c.baseURL
	if !strings.HasSuffix(url, "/taxii2") {
		url += "/taxii2"
	}
	var disc discoveryResource
	if err := c.get(ctx, c.listClient, url+"/", &disc); err != nil {
		return nil, err
	}

	roots := make([]APIRoot, 0, len(disc.APIRoots))
	for _, rootURL := range disc.APIRoots {
		root := APIRoot{
			Title:       rootURL,
			Description: "Default API Root",
			URL:         rootURL,
		}
		var info apiRootResource
		if err := c.get(ctx, c.listClient, strings.TrimRight(rootURL, "/")+"/", &info); err != nil {
			c.logger.Printf("api root %s did not describe itself: %v", rootURL, err)
		} else {
			if info.Title != "" {
				root.Title = info.Title
			}
			if info.Description != "" {
				root.Description = info.Description
			}
		}
		roots = append(roots, root)
	}
	return roots, nil
}
