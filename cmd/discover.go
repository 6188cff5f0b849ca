package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"taxiiwatch/internal/taxii"
)

var (
	discoverServerURL string
	discoverAPIRoot   string
	discoverUsername  string
	discoverPassword  string
)

// discoverCmd represents the discover command group
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover API roots and collections on a TAXII server",
	Long: `Query a TAXII server's discovery resource for its API roots, or an API
root for its collections, to find the values needed when adding a feed.

Examples:
  # List the server's API roots
  taxiiwatch discover roots --server https://taxii.example.com

  # List an API root's collections
  taxiiwatch discover collections --api-root https://taxii.example.com/api1`,
}

var discoverRootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List a server's API roots",
	RunE:  runDiscoverRoots,
}

var discoverCollectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List an API root's collections",
	RunE:  runDiscoverCollections,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.AddCommand(discoverRootsCmd)
	discoverCmd.AddCommand(discoverCollectionsCmd)

	discoverCmd.PersistentFlags().StringVar(&discoverUsername, "username", "", "Basic auth username")
	discoverCmd.PersistentFlags().StringVar(&discoverPassword, "password", "", "Basic auth password")

	discoverRootsCmd.Flags().StringVar(&discoverServerURL, "server", "", "TAXII server base URL (required)")
	discoverRootsCmd.MarkFlagRequired("server")

	discoverCollectionsCmd.Flags().StringVar(&discoverAPIRoot, "api-root", "", "API root URL (required)")
	discoverCollectionsCmd.MarkFlagRequired("api-root")
}

func runDiscoverRoots(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "[discover] ", log.LstdFlags)

	roots, err := taxii.DiscoverAPIRoots(cmd.Context(), discoverServerURL, discoverUsername, discoverPassword, logger)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(roots) == 0 {
		fmt.Println("No API roots advertised.")
		return nil
	}
	fmt.Printf("Found %d API roots:\n\n", len(roots))
	for i, root := range roots {
		fmt.Printf("%d. %s\n", i+1, root.Title)
		fmt.Printf("   URL: %s\n", root.URL)
		if root.Description != "" {
			fmt.Printf("   Description: %s\n", root.Description)
		}
		fmt.Println()
	}
	return nil
}

func runDiscoverCollections(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "[discover] ", log.LstdFlags)

	client := taxii.NewClient(taxii.Config{
		APIRootURL: discoverAPIRoot,
		Username:   discoverUsername,
		Password:   discoverPassword,
		Logger:     logger,
	})
	collections, err := client.Collections(cmd.Context())
	if err != nil {
		return fmt.Errorf("collection listing failed: %w", err)
	}

	if len(collections) == 0 {
		fmt.Println("No collections available.")
		return nil
	}
	fmt.Printf("Found %d collections:\n\n", len(collections))
	for i, col := range collections {
		fmt.Printf("%d. %s\n", i+1, col.Title)
		fmt.Printf("   ID: %s\n", col.ID)
		if col.Description != "" {
			fmt.Printf("   Description: %s\n", col.Description)
		}
		fmt.Println()
	}
	return nil
}
