package main

import (
	"fmt"
	"os"

	"pairsurvey/internal/backup"
	"pairsurvey/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var projectRoot string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pairsurvey",
	Short: "Sentence-pair similarity survey server",
	Long: `pairsurvey runs a web survey in which participants rate how similar two
sentences are on a 7-point scale, one pair at a time.

Available subcommands:
  serve         - Run the survey web server
  pairs         - Expand a sentence list into a pair catalog
  export        - Write the saved response table to a CSV file
  hash-password - Hash the admin password for the config file`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "root", "r", ".", "Project directory holding config/ and data/")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newTransport builds the backup transport from the loaded configuration.
func newTransport(conf config.BackupConfig, log *zap.Logger) *backup.Transport {
	local := backup.NewLocalFile(conf.LocalPath)
	var remote *backup.GitHub
	if r := conf.Remote; r.Enabled {
		remote = backup.NewGitHub(backup.RemoteOptions{
			APIURL:        r.APIURL,
			RawURL:        r.RawURL,
			Owner:         r.Owner,
			Repo:          r.Repo,
			Path:          r.Path,
			Branch:        r.Branch,
			Token:         r.Token,
			CommitMessage: r.CommitMessage,
			Timeout:       r.Timeout,
		})
		if r.Token == "" {
			log.Warn("Remote backup has no token; pushes will be rejected")
		}
	}
	return backup.NewTransport(log.Named("backup"), local, remote)
}
