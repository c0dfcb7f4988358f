package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cmdc/internal/backend/pack"
	"cmdc/internal/ir"
)

var (
	linkOutput    string
	linkNamespace string
	linkJobs      int
)

func init() {
	linkCmd.Flags().StringVarP(&linkOutput, "output", "o", "", "output directory (default from cmdc.toml or dist)")
	linkCmd.Flags().StringVar(&linkNamespace, "namespace", "", "emission namespace (default from cmdc.toml or cmdc)")
	linkCmd.Flags().IntVarP(&linkJobs, "jobs", "j", 0, "number of parallel loaders (0 = GOMAXPROCS)")
}

var linkCmd = &cobra.Command{
	Use:   "link [objects...]",
	Short: "Link object files into one function pack",
	Long: `Link loads the given object files, merges them into a single unit,
resolves external references, and writes the merged pack out. With no
arguments the inputs come from the nearest cmdc.toml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs := args
		output := linkOutput
		namespace := linkNamespace

		if len(inputs) == 0 {
			manifest, ok, err := loadProjectManifest(".")
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s", noCmdcTomlMessage)
			}
			inputs = manifest.manifestInputs()
			if output == "" {
				output = manifest.manifestOutput()
			}
			if namespace == "" {
				namespace = manifest.manifestNamespace()
			}
		}
		if output == "" {
			output = "dist"
		}

		units, err := loadObjects(cmd.Context(), inputs, linkJobs)
		if err != nil {
			return err
		}

		merged, err := ir.Link(units...)
		if err != nil {
			return fmt.Errorf("link failed: %w", err)
		}

		results, err := merged.RunPragmas(knownPragmas())
		if err != nil {
			return err
		}
		if ns, ok := results["namespace"].(string); ok && namespace == "" {
			namespace = ns
		}

		w := pack.NewWriter(namespace)
		if err := merged.Writeout(w); err != nil {
			return fmt.Errorf("writeout failed: %w", err)
		}
		if err := w.WriteTo(output); err != nil {
			return err
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "linked %d objects into %s (%d functions)\n",
				len(inputs), output, len(w.Functions()))
		}
		return nil
	},
}

// loadObjects reads and decodes every object file in parallel. Result
// indexes are unique per goroutine, so no mutex is needed.
func loadObjects(ctx context.Context, paths []string, jobs int) ([]*ir.TopLevel, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	units := make([]*ir.TopLevel, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			unit, err := ir.LoadObject(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			units[i] = unit
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// knownPragmas is the pragma surface the CLI understands. The core only
// reduces and applies; the meanings live here.
func knownPragmas() map[string]ir.Pragma {
	return map[string]ir.Pragma{
		"namespace": namespacePragma{},
		"tag":       tagPragma{},
	}
}

// namespacePragma requires every occurrence to agree and yields the value.
type namespacePragma struct{}

func (namespacePragma) Reduce(acc, val string) (string, error) {
	if acc != val {
		return "", fmt.Errorf("conflicting namespaces %q and %q", acc, val)
	}
	return acc, nil
}

func (namespacePragma) Apply(_ *ir.TopLevel, val string) (any, error) {
	return val, nil
}

// tagPragma unions comma-separated tag lists across units.
type tagPragma struct{}

func (tagPragma) Reduce(acc, val string) (string, error) {
	if acc == "" {
		return val, nil
	}
	if val == "" {
		return acc, nil
	}
	return acc + "," + val, nil
}

func (tagPragma) Apply(_ *ir.TopLevel, val string) (any, error) {
	seen := make(map[string]bool)
	var tags []string
	for _, tag := range strings.Split(val, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags, nil
}
