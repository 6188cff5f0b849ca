package cmd

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"taxiiwatch/internal/feed"
)

var (
	feedName       string
	feedAPIRoot    string
	feedCollection string
	feedUsername   string
	feedPassword   string
)

// feedsCmd represents the feeds command group
var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage configured TAXII feeds",
	Long: `List, add, and delete the TAXII feed subscriptions persisted in the
feed store file.

Examples:
  # List feeds
  taxiiwatch feeds list

  # Add a feed
  taxiiwatch feeds add --name "CISA AIS" \
    --api-root https://taxii.example.com/api1 \
    --collection "Public Indicators"

  # Delete the second feed (positional index, zero-based) or by id
  taxiiwatch feeds delete 1
  taxiiwatch feeds delete 6f1c7f9a-...`,
}

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured feeds",
	RunE:  runFeedsList,
}

var feedsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a feed",
	RunE:  runFeedsAdd,
}

var feedsDeleteCmd = &cobra.Command{
	Use:   "delete <index|id>",
	Short: "Delete a feed by positional index or id",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedsDelete,
}

func init() {
	rootCmd.AddCommand(feedsCmd)
	feedsCmd.AddCommand(feedsListCmd)
	feedsCmd.AddCommand(feedsAddCmd)
	feedsCmd.AddCommand(feedsDeleteCmd)

	feedsAddCmd.Flags().StringVar(&feedName, "name", "", "Display name for the feed")
	feedsAddCmd.Flags().StringVar(&feedAPIRoot, "api-root", "", "API root URL (required)")
	feedsAddCmd.Flags().StringVar(&feedCollection, "collection", "", "Collection title (required)")
	feedsAddCmd.Flags().StringVar(&feedUsername, "username", "", "Basic auth username")
	feedsAddCmd.Flags().StringVar(&feedPassword, "password", "", "Basic auth password")
	feedsAddCmd.MarkFlagRequired("api-root")
	feedsAddCmd.MarkFlagRequired("collection")
}

func feedStore() *feed.Store {
	config := GetConfig()
	logger := log.New(os.Stderr, "[feeds] ", log.LstdFlags)
	return feed.NewStore(config.Data.FeedsFile, logger)
}

func runFeedsList(cmd *cobra.Command, args []string) error {
	feeds, err := feedStore().List()
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	if len(feeds) == 0 {
		fmt.Println("No feeds configured.")
		return nil
	}

	fmt.Printf("Found %d feeds:\n\n", len(feeds))
	for i, f := range feeds {
		fmt.Printf("%d. %s\n", i, f.Name)
		fmt.Printf("   ID: %s\n", f.ID)
		fmt.Printf("   API Root: %s\n", f.APIRootURL)
		fmt.Printf("   Collection: %s\n", f.CollectionTitle)
		if f.Username != "" {
			fmt.Printf("   Auth: basic (%s)\n", f.Username)
		}
		fmt.Printf("   Added: %s\n", f.Added)
		fmt.Println()
	}
	return nil
}

func runFeedsAdd(cmd *cobra.Command, args []string) error {
	f := feed.New(feedName, feedAPIRoot, feedCollection, feedUsername, feedPassword)
	if err := feedStore().Add(f); err != nil {
		return fmt.Errorf("failed to add feed: %w", err)
	}
	fmt.Printf("Added feed %q (%s)\n", f.Name, f.ID)
	return nil
}

func runFeedsDelete(cmd *cobra.Command, args []string) error {
	store := feedStore()
	ref := args[0]

	if index, err := strconv.Atoi(ref); err == nil {
		if err := store.DeleteAt(index); err != nil {
			return fmt.Errorf("failed to delete feed: %w", err)
		}
		fmt.Printf("Deleted feed at index %d\n", index)
		return nil
	}

	found, err := store.DeleteByID(ref)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	if !found {
		return fmt.Errorf("no feed with id %s", ref)
	}
	fmt.Printf("Deleted feed %s\n", ref)
	return nil
}
