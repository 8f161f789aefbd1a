package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/internal/viewer"
	"github.com/jwalitptl/rch-registry/pkg/logger"
)

const envPrefix = "RCH"

func loadConfig() (viewer.Config, error) {
	var cfg viewer.Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to read %s_* environment: %w", envPrefix, err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	var (
		serverURL string
		verbose   bool
	)

	root := &cobra.Command{
		Use:           "viewer",
		Short:         "Follow and add records in the RCH patient registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "", "registry base URL (overrides RCH_SERVER_URL)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log connection details")

	newClient := func() (*viewer.Client, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log := logger.New(&logger.Config{Level: level, Console: true, Output: os.Stderr})
		return viewer.New(cfg, log), nil
	}

	root.AddCommand(newWatchCmd(newClient), newAddCmd(newClient))
	return root
}

func newWatchCmd(newClient func() (*viewer.Client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the registry and every record added while watching",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := client.Mount(ctx); err != nil {
				return err
			}
			defer client.Unmount()

			out := cmd.OutOrStdout()
			printTable(out, client.Records())
			fmt.Fprintln(out, "watching for new patients, Ctrl+C to stop")

			for {
				select {
				case <-ctx.Done():
					return nil
				case p, ok := <-client.Updates():
					if !ok {
						return fmt.Errorf("connection to registry lost")
					}
					printRow(out, p)
				}
			}
		},
	}
}

func newAddCmd(newClient func() (*viewer.Client, error)) *cobra.Command {
	form := viewer.NewForm()
	var patientType, healthStatus string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new patient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			form.Type = model.PatientType(patientType)
			form.HealthStatus = model.HealthStatus(healthStatus)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			created, err := client.Submit(ctx, form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patient Data Saved! id=%s\n", created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&form.PatientName, "name", "", "patient name")
	cmd.Flags().IntVar(&form.Age, "age", 0, "age in years")
	cmd.Flags().StringVar(&form.Location, "location", "", "ward or village")
	cmd.Flags().StringVar(&patientType, "type", string(model.PatientTypeMother), "Mother or Child")
	cmd.Flags().StringVar(&healthStatus, "status", string(model.HealthStatusHealthy), "Healthy, Under Treatment or Critical")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("age")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func printTable(w io.Writer, patients []model.Patient) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAGE\tLOCATION\tTYPE\tSTATUS\tLAST CHECKUP")
	for _, p := range patients {
		fmt.Fprintln(tw, row(p))
	}
	tw.Flush()
}

func printRow(w io.Writer, p model.Patient) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "+ "+row(p))
	tw.Flush()
}

func row(p model.Patient) string {
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s\t%s",
		p.PatientName, p.Age, p.Location, p.Type, p.HealthStatus, p.LastCheckup.Local().Format("2006-01-02"))
}
