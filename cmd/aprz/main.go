// Command aprz is a thin CLI wrapper around the appraisal orchestrator:
// it accepts already-resolved package references on argv and prints
// their flattened metrics as JSON. Flag parsing beyond that — config
// files, policy loading, report rendering — is out of scope; the
// command exists to exercise github.com/urfave/cli/v3 end to end, not
// to be a full product surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/urfave/cli/v3"

	"aprz.dev/aprz/internal/alog"
	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/metrics"
	"aprz.dev/aprz/internal/orchestrator"
	"aprz.dev/aprz/internal/specs"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "aprz",
		Usage:                 "Registry package appraisal",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			appraiseCommand(),
		},
	}
}

func appraiseCommand() *cli.Command {
	return &cli.Command{
		Name:      "appraise",
		Usage:     "Collect and print metrics for one or more packages",
		ArgsUsage: "<name[@version]>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cache-dir",
				Usage:   "Directory the on-disk fact/snapshot caches live under",
				Value:   defaultCacheDir(),
				Sources: cli.EnvVars("APRZ_CACHE_DIR"),
			},
			&cli.StringFlag{
				Name:    "snapshot-url",
				Usage:   "Source URL for the registry snapshot tarball",
				Sources: cli.EnvVars("APRZ_SNAPSHOT_URL"),
			},
			&cli.StringFlag{
				Name:    "github-token",
				Usage:   "Bearer token for the GitHub hosting API",
				Sources: cli.EnvVars("APRZ_GITHUB_TOKEN", "GITHUB_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "codeberg-token",
				Usage:   "Bearer token for the Codeberg hosting API",
				Sources: cli.EnvVars("APRZ_CODEBERG_TOKEN"),
			},
			&cli.BoolFlag{
				Name:  "ignore-cache",
				Usage: "Bypass every on-disk cache and always collect fresh facts",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "TRACE, DEBUG, INFO, WARN, or ERROR",
				Value:   "INFO",
				Sources: cli.EnvVars("APRZ_LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := alog.Configure(c.String("log-level")); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}

			refs, err := parseRefs(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				return fmt.Errorf("aprz appraise: at least one package reference required")
			}

			orch, err := orchestrator.New(ctx,
				orchestrator.WithCacheDir(c.String("cache-dir")),
				orchestrator.WithRepoCacheRoot(c.String("cache-dir")),
				orchestrator.WithSnapshotURL(c.String("snapshot-url")),
				orchestrator.WithGitHubToken(c.String("github-token")),
				orchestrator.WithCodebergToken(c.String("codeberg-token")),
				orchestrator.WithIgnoreCache(c.Bool("ignore-cache")),
			)
			if err != nil {
				return fmt.Errorf("aprz appraise: %w", err)
			}
			defer orch.Close()

			records := orch.Collect(ctx, refs)
			return printMetrics(records)
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/aprz"
	}
	return ".aprz-cache"
}

// parseRefs turns "name" or "name@version" argv tokens into PackageRefs.
func parseRefs(args []string) ([]specs.PackageRef, error) {
	refs := make([]specs.PackageRef, 0, len(args))
	for _, arg := range args {
		name, versionStr, pinned := strings.Cut(arg, "@")
		if name == "" {
			return nil, fmt.Errorf("invalid package reference %q", arg)
		}

		ref := specs.PackageRef{Name: name}
		if pinned {
			v, err := semver.NewVersion(versionStr)
			if err != nil {
				return nil, fmt.Errorf("invalid version in %q: %w", arg, err)
			}
			ref.Version = v
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// reportRow is the flattened, JSON-rendered shape of one package's
// metrics — a dotted name paired with whatever value Flatten resolved,
// which may be nil when neither an extractor nor a default applied.
type reportRow struct {
	Package string                 `json:"package"`
	Metrics map[string]metricValue `json:"metrics"`
}

type metricValue struct {
	Category string `json:"category"`
	Value    any    `json:"value"`
}

func printMetrics(records []facts.PackageFacts) error {
	rows := make([]reportRow, 0, len(records))
	for i := range records {
		pf := &records[i]
		rows = append(rows, reportRow{
			Package: pf.Spec.String(),
			Metrics: flattenToJSON(metrics.Flatten(pf)),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func flattenToJSON(ms []metrics.Metric) map[string]metricValue {
	out := make(map[string]metricValue, len(ms))
	for _, m := range ms {
		out[m.Name()] = metricValue{
			Category: categoryName(m.Def.Category),
			Value:    renderValue(m.Value),
		}
	}
	return out
}

func categoryName(c metrics.Category) string {
	switch c {
	case metrics.CategoryMetadata:
		return "metadata"
	case metrics.CategoryCommunity:
		return "community"
	case metrics.CategoryTrustworthiness:
		return "trustworthiness"
	case metrics.CategoryDocumentation:
		return "documentation"
	case metrics.CategoryUsage:
		return "usage"
	case metrics.CategoryCodebase:
		return "codebase"
	default:
		return "unknown"
	}
}

func renderValue(v *metrics.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case metrics.KindUInt:
		return v.UInt
	case metrics.KindFloat:
		return v.Float
	case metrics.KindBoolean:
		return v.Bool
	case metrics.KindString:
		return v.String
	case metrics.KindDateTime:
		return v.DateTime.Format(time.RFC3339)
	case metrics.KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = renderValue(&item)
		}
		return out
	default:
		return nil
	}
}
