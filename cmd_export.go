package main

import (
	"context"
	"fmt"
	"os"

	"pairsurvey/internal/backup"
	"pairsurvey/internal/config"
	"pairsurvey/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportOutput      string
	exportParticipant string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the saved response table to a CSV file",
	Long: `Load the response table the same way the server does (local backup, then the
remote repository, then the raw file host) and write it out. With --participant
only that participant's rows are written, in pair order.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "File to write, or - for stdout")
	exportCmd.Flags().StringVarP(&exportParticipant, "participant", "p", "", "Only export this participant id")
}

func runExport(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(projectRoot); err != nil {
		return err
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	records, source, err := newTransport(config.Conf.Backup, log).Load(context.Background())
	if err != nil {
		return err
	}
	if source == backup.SourceNone {
		return fmt.Errorf("no saved responses found")
	}
	table := store.New(records, nil)
	records = table.All()
	if exportParticipant != "" {
		records = table.ForParticipant(exportParticipant)
		if len(records) == 0 {
			return fmt.Errorf("no responses for participant %q", exportParticipant)
		}
	}

	out := cmd.OutOrStdout()
	if exportOutput != "-" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := backup.WriteCSV(out, records); err != nil {
		return err
	}
	log.Info("Exported responses", zap.String("source", string(source)), zap.Int("records", len(records)))
	return nil
}
