// sesdomain finishes mail-domain onboarding after the ingestion stack is
// deployed: it waits for the mail provider to generate the domain
// verification and DKIM tokens, publishes the matching DNS records in the
// hosted zone, and polls both systems until the domain is verified.
//
// Typical usage after a deploy:
//
//	sesdomain verify --domain example.com --rule-set inbound-mail
//
// Every flag can also be set through the environment with the SESDOMAIN_
// prefix, e.g. SESDOMAIN_DOMAIN=example.com.
//
// Exit codes: 0 the domain converged to verified, 2 a wait budget ran out
// (safe to rerun), 1 permanent failure (operator attention needed).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dmitrymomot/sesdomain/pkg/converge"
	"github.com/dmitrymomot/sesdomain/pkg/dnsplan"
	"github.com/dmitrymomot/sesdomain/pkg/dnsprobe"
	"github.com/dmitrymomot/sesdomain/pkg/dnszone"
	"github.com/dmitrymomot/sesdomain/pkg/logger"
	"github.com/dmitrymomot/sesdomain/pkg/sesmail"
)

const envPrefix = "SESDOMAIN"

var (
	flagDomain     string
	flagZoneID     string
	flagRegion     string
	flagAccessKey  string
	flagSecretKey  string
	flagNameserver string
	flagRuleSet    string
	flagDKIMTokens int
	flagTokenWait  time.Duration
	flagPropWait   time.Duration
	flagPollEvery  time.Duration
	flagVerbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, converge.ErrBudgetExceeded) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sesdomain",
	Short: "Verify a mail domain and publish its DNS records",
	Long: `sesdomain reconciles a freshly-created mail domain identity with its DNS zone.

The mail provider generates the ownership verification token and the DKIM
signing tokens asynchronously, which can take several minutes. sesdomain
polls until they exist, upserts the required TXT and CNAME records into the
hosted zone, then polls the provider's verification status and DNS
propagation until both converge or a budget runs out. Record application is
idempotent, so rerunning after a timeout is always safe.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindEnv(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDomain, "domain", "", "mail domain to onboard (required)")
	pf.StringVar(&flagZoneID, "zone-id", "", "hosted zone ID (default: looked up by domain name)")
	pf.StringVar(&flagRegion, "region", "", "AWS region (default: from the environment)")
	pf.StringVar(&flagAccessKey, "access-key", "", "AWS access key (default: credential chain)")
	pf.StringVar(&flagSecretKey, "secret-key", "", "AWS secret key (default: credential chain)")
	pf.StringVar(&flagNameserver, "nameserver", "", "resolver for propagation checks (default: /etc/resolv.conf)")
	pf.IntVar(&flagDKIMTokens, "dkim-tokens", 3, "number of DKIM tokens the provider issues per domain")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log every poll, not only state transitions")

	vf := verifyCmd.Flags()
	vf.StringVar(&flagRuleSet, "rule-set", "", "receipt rule set to activate once verified")
	vf.DurationVar(&flagTokenWait, "token-wait", converge.DefaultTokenWaitBudget, "budget for the provider to generate tokens")
	vf.DurationVar(&flagPropWait, "propagation-wait", converge.DefaultPropagationBudget, "budget for DNS and verification to converge")
	vf.DurationVar(&flagPollEvery, "poll-interval", converge.DefaultPollInterval, "interval between polls")

	rootCmd.AddCommand(verifyCmd, planCmd)
}

// bindEnv lets SESDOMAIN_* environment variables back any flag the caller
// did not set explicitly.
func bindEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		err = f.Value.Set(v.GetString(f.Name))
	})
	return err
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the full convergence loop for a domain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if flagDomain == "" {
			return errors.New("--domain is required")
		}
		log := newLogger()

		sesClient, r53, err := newClients(ctx)
		if err != nil {
			return err
		}
		zoneID, err := resolveZone(ctx, r53, log)
		if err != nil {
			return err
		}
		prober, err := dnsprobe.New(dnsprobe.Config{Nameserver: flagNameserver})
		if err != nil {
			return err
		}

		fetcher := sesmail.New(sesClient, sesmail.Config{DKIMTokenCount: flagDKIMTokens})
		poller := converge.New(fetcher, fetcher, dnszone.New(r53, zoneID), prober, converge.Config{
			TokenWaitBudget:   flagTokenWait,
			PropagationBudget: flagPropWait,
			PollInterval:      flagPollEvery,
		}, log)

		res := poller.Run(ctx, flagDomain)
		fmt.Fprint(cmd.OutOrStdout(), res.Summary())

		if !res.Verified() {
			return res.Err
		}
		if flagRuleSet != "" {
			// Activation is non-critical: verification already succeeded
			// and the operator can retry it alone.
			if err := fetcher.ActivateRuleSet(ctx, flagRuleSet); err != nil {
				log.Warn("receipt rule set activation failed",
					slog.String("rule_set", flagRuleSet),
					slog.String("error", err.Error()),
				)
			} else {
				log.Info("receipt rule set active", slog.String("rule_set", flagRuleSet))
			}
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Fetch tokens once and print the records that would be applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if flagDomain == "" {
			return errors.New("--domain is required")
		}

		sesClient, _, err := newClients(ctx)
		if err != nil {
			return err
		}
		fetcher := sesmail.New(sesClient, sesmail.Config{DKIMTokenCount: flagDKIMTokens})

		tokens, err := fetcher.FetchTokens(ctx, flagDomain)
		if errors.Is(err, converge.ErrTokensPending) {
			return fmt.Errorf("provider is still generating tokens for %s, try again shortly", flagDomain)
		}
		if err != nil {
			return err
		}

		for _, rec := range dnsplan.Plan(flagDomain, tokens.Verification, tokens.DKIM) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-5s %s -> %s (ttl %d)\n", rec.Type, rec.Name, rec.Value, rec.TTL)
		}
		return nil
	},
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return logger.New(level)
}

func newClients(ctx context.Context) (*ses.Client, *route53.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if flagRegion != "" {
		opts = append(opts, awsconfig.WithRegion(flagRegion))
	}
	if flagAccessKey != "" && flagSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(flagAccessKey, flagSecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	return ses.NewFromConfig(cfg), route53.NewFromConfig(cfg), nil
}

func resolveZone(ctx context.Context, r53 *route53.Client, log *slog.Logger) (string, error) {
	if flagZoneID != "" {
		return flagZoneID, nil
	}
	zoneID, err := dnszone.LookupZoneID(ctx, r53, flagDomain)
	if err != nil {
		return "", err
	}
	log.Info("hosted zone resolved",
		slog.String("domain", flagDomain),
		slog.String("zone_id", zoneID),
	)
	return zoneID, nil
}
