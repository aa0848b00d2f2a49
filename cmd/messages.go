package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// newMessagesCmd creates the 'messages' subcommand, which prints the raw bodies
// of one page, fetching and caching whatever is missing.
func newMessagesCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Prints the raw message bodies of one page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config().Archive
			if page == 0 {
				page = cfg.FirstPage
			}
			coord := archive.Coordinate{Collection: cfg.Collection, Thread: cfg.Thread, Page: page}

			out := cmd.OutOrStdout()
			stream := appInstance.Coordinator().MessagesForPage(coord)
			for stream.Next(cmd.Context()) {
				msg := stream.Message()
				if msg.Err != nil {
					appInstance.Logger().Warn("message body unavailable",
						zap.String("path", msg.Path()), zap.Error(msg.Err))
				}
				if _, err := fmt.Fprintf(out, "==> %s <==\n%s\n", msg.Path(), msg.Body); err != nil {
					return fmt.Errorf("write message: %w", err)
				}
			}
			if err := stream.Err(); err != nil {
				return fmt.Errorf("messages for %s: %w", coord, err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page to print (defaults to --first-page)")
	return cmd
}
