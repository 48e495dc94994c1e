package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"helicase/internal/config"
	"helicase/internal/ipc"
)

func newStatusCommand(configFlag, socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status over the control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}

			socket := strings.TrimSpace(*socketFlag)
			if socket == "" {
				socket = cfg.SocketPath()
			}
			client, err := ipc.Dial(socket)
			if err != nil {
				return fmt.Errorf("connect to helicased at %s (is the daemon running with repl enabled?): %w", socket, err)
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Field", "Value"},
				[][]string{
					{"Running", strconv.FormatBool(status.Running)},
					{"Started", status.StartedAt},
					{"PID", strconv.Itoa(status.PID)},
					{"Promoted runs", strconv.Itoa(status.PromotedRuns)},
					{"Excluded runs", strconv.Itoa(status.ExcludedRuns)},
					{"Excluded libraries", strconv.Itoa(status.ExcludedLibraries)},
					{"Config", status.ConfigPath},
					{"Lock", status.LockPath},
				},
			))

			if len(status.Preflight) > 0 {
				rows := make([][]string, 0, len(status.Preflight))
				for _, check := range status.Preflight {
					state := "ok"
					if !check.Passed {
						state = "failed"
						if check.Fatal {
							state = "fatal"
						}
					}
					rows = append(rows, []string{check.Name, state, check.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Check", "State", "Detail"}, rows))
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Pipeline", "Version"},
				pipelineRows(cfg),
			))
			return nil
		},
	}
}

// pipelineRows lists the configured pipelines with human display names.
func pipelineRows(cfg *config.Config) [][]string {
	titler := cases.Title(language.English)
	humanize := func(key string) string {
		return titler.String(strings.ReplaceAll(key, "_", " "))
	}
	return [][]string{
		{humanize("routine_assembly"), cfg.Pipelines.RoutineAssembly.Version},
		{humanize("taxon_abundance"), cfg.Pipelines.TaxonAbundance.Version},
		{humanize("mlst"), cfg.Pipelines.MLST.Version},
		{humanize("plasmid_screen"), cfg.Pipelines.PlasmidScreen.Version},
	}
}
