package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/tuner"
)

func newProfilesCmd(gf *globalFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "profiles",
		Short: "List or apply optimization profiles",
	}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in profiles and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProfiles(cmd.OutOrStdout())
		},
	})

	var remote string
	apply := &cobra.Command{
		Use:   "apply <name>",
		Short: "Apply a profile on a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := tuner.LookupProfile(args[0]); err != nil {
				return fmt.Errorf("%w: %s (known: %v)", err, args[0], tuner.ProfileNames())
			}
			addr, err := daemonAddr(gf, remote)
			if err != nil {
				return err
			}
			var res model.OptimizationResult
			// A profile applies and then waits out the settle time.
			if err := newAPIClient(addr, 5*time.Minute).post("/api/v1/optimizations/profiles/"+args[0], nil, &res); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	apply.Flags().StringVar(&remote, "remote", "", "daemon address (default: http.addr from config)")
	c.AddCommand(apply)
	return c
}

// daemonAddr returns remote, or the configured HTTP address.
func daemonAddr(gf *globalFlags, remote string) (string, error) {
	if remote != "" {
		return remote, nil
	}
	cfg, err := gf.load()
	if err != nil {
		return "", err
	}
	if !cfg.HTTP.Enabled {
		return "", fmt.Errorf("http is disabled in the config; pass --remote")
	}
	return cfg.HTTP.Addr, nil
}

func listProfiles(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range tuner.ProfileNames() {
		p, err := tuner.LookupProfile(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Description)
		for _, r := range p.Recommendations {
			keys := make([]string, 0, len(r.Parameters))
			for k := range r.Parameters {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(tw, "  %s\t%s = %g\n", r.Type, k, r.Parameters[k])
			}
		}
	}
	return tw.Flush()
}

func printResult(w io.Writer, res model.OptimizationResult) {
	label := res.Profile
	if label == "" {
		label = "optimization"
	}
	fmt.Fprintf(w, "%s: %d change(s), overall improvement %+.1f%%\n", label, len(res.Executions), res.OverallImprovement)
	for _, e := range res.Executions {
		state := "applied"
		switch {
		case e.RolledBack:
			state = "rolled back"
		case !e.Success:
			state = "failed"
		}
		fmt.Fprintf(w, "  %-12s %-16s %s", state, e.Recommendation.Type, e.Recommendation.Description)
		if e.Error != "" {
			fmt.Fprintf(w, " (%s)", e.Error)
		}
		fmt.Fprintln(w)
	}
}
