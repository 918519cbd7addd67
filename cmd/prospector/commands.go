package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/smallbiznis/prospector/internal/enrichment"
	keyworddomain "github.com/smallbiznis/prospector/internal/keyword/domain"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	proposaldomain "github.com/smallbiznis/prospector/internal/proposal/domain"
	"github.com/smallbiznis/prospector/internal/quota"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"github.com/spf13/cobra"
)

var (
	batchMaxTerms    int
	batchMaxAccepted int
	statsDays        int
	proposeLimit     int
	proposeMinScore  int

	rootCmd = &cobra.Command{
		Use:           "prospector",
		Short:         "Quota-governed company discovery and outreach",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the scheduler",
		Run: func(cmd *cobra.Command, args []string) {
			newServeApp().Run()
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Run one enrichment batch over pending keywords",
		RunE:  runBatch,
	}

	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Show today's usage against the active tier",
		RunE:  showUsage,
	}

	tierCmd = &cobra.Command{
		Use:   "tier",
		Short: "Inspect or change the subscription tier",
	}
	tierShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the tier state and its limits",
		RunE:  showTier,
	}
	tierSetCmd = &cobra.Command{
		Use:   "set [tier]",
		Short: "Persist a new tier",
		Args:  cobra.ExactArgs(1),
		RunE:  setTier,
	}
	tierPushCmd = &cobra.Command{
		Use:   "push [tier]",
		Short: "Apply a temporary tier override",
		Args:  cobra.ExactArgs(1),
		RunE:  pushTier,
	}
	tierPopCmd = &cobra.Command{
		Use:   "pop",
		Short: "Restore the tier saved by the last push",
		RunE:  popTier,
	}

	keywordsCmd = &cobra.Command{
		Use:   "keywords",
		Short: "Manage discovery keywords",
	}
	keywordsAddCmd = &cobra.Command{
		Use:   "add [term...]",
		Short: "Queue search terms",
		Args:  cobra.MinimumNArgs(1),
		RunE:  addKeywords,
	}

	proposeCmd = &cobra.Command{
		Use:   "propose [company-id]",
		Short: "Generate proposals for one company, or for the top-scored companies",
		Args:  cobra.MaximumNArgs(1),
		RunE:  propose,
	}
)

func init() {
	batchCmd.Flags().IntVar(&batchMaxTerms, "max-terms", 0, "keywords to lease for this run (0 uses the configured maximum)")
	batchCmd.Flags().IntVar(&batchMaxAccepted, "max-accepted", 0, "cap on newly accepted companies (0 uses the configured cap)")
	usageCmd.Flags().IntVar(&statsDays, "days", 0, "include statistics for the last N days")
	proposeCmd.Flags().IntVar(&proposeLimit, "limit", 5, "companies to cover when no id is given")
	proposeCmd.Flags().IntVar(&proposeMinScore, "min-score", 0, "minimum score when no id is given")

	tierCmd.AddCommand(tierShowCmd, tierSetCmd, tierPushCmd, tierPopCmd)
	keywordsCmd.AddCommand(keywordsAddCmd)
	rootCmd.AddCommand(serveCmd, batchCmd, usageCmd, tierCmd, keywordsCmd, proposeCmd)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	var wf *enrichment.Workflow
	return runOneShot(ctx, func(ctx context.Context) error {
		result, err := wf.RunBatch(ctx, enrichment.BatchRequest{
			MaxTerms:    batchMaxTerms,
			MaxAccepted: batchMaxAccepted,
		})
		if printErr := printJSON(result); printErr != nil {
			return printErr
		}
		return err
	}, &wf)
}

func showUsage(cmd *cobra.Command, _ []string) error {
	var (
		gate   *quota.Gate
		ledger usagedomain.Ledger
	)
	return runOneShot(cmd.Context(), func(ctx context.Context) error {
		out := map[string]any{
			"date":       ledger.Today().Format(usagedomain.DayLayout),
			"operations": gate.Usage(ctx),
		}
		if at, ok := ledger.LastReset(ctx); ok {
			out["last_reset"] = at
		}
		if statsDays > 0 {
			out["statistics"] = ledger.Statistics(ctx, statsDays)
		} else if statsDays < 0 {
			return usagedomain.ErrInvalidDays
		}
		return printJSON(out)
	}, &gate, &ledger)
}

func withPolicy(cmd *cobra.Command, fn func(ctx context.Context, policy plandomain.Policy) error) error {
	var policy plandomain.Policy
	return runOneShot(cmd.Context(), func(ctx context.Context) error {
		if err := fn(ctx, policy); err != nil {
			return err
		}
		state, err := policy.State(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"state":  state,
			"limits": policy.LimitsFor(ctx, &state.Current),
		})
	}, &policy)
}

func showTier(cmd *cobra.Command, _ []string) error {
	return withPolicy(cmd, func(context.Context, plandomain.Policy) error { return nil })
}

func setTier(cmd *cobra.Command, args []string) error {
	tier, err := plandomain.ParseTier(args[0])
	if err != nil {
		return err
	}
	return withPolicy(cmd, func(ctx context.Context, policy plandomain.Policy) error {
		return policy.SetTier(ctx, tier)
	})
}

func pushTier(cmd *cobra.Command, args []string) error {
	tier, err := plandomain.ParseTier(args[0])
	if err != nil {
		return err
	}
	return withPolicy(cmd, func(ctx context.Context, policy plandomain.Policy) error {
		return policy.PushTemporaryTier(ctx, tier)
	})
}

func popTier(cmd *cobra.Command, _ []string) error {
	return withPolicy(cmd, func(ctx context.Context, policy plandomain.Policy) error {
		return policy.PopTemporaryTier(ctx)
	})
}

func addKeywords(cmd *cobra.Command, args []string) error {
	var keywords keyworddomain.Service
	return runOneShot(cmd.Context(), func(ctx context.Context) error {
		created, err := keywords.Create(ctx, args)
		if err != nil {
			return err
		}
		return printJSON(created)
	}, &keywords)
}

func propose(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	var proposals proposaldomain.Service
	return runOneShot(ctx, func(ctx context.Context) error {
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return errors.New("company id must be a positive integer")
			}
			p, err := proposals.Generate(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(p)
		}

		result, err := proposals.GenerateTop(ctx, proposaldomain.GenerateTopRequest{
			Limit:    proposeLimit,
			MinScore: proposeMinScore,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	}, &proposals)
}
