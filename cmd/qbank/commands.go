package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"questionbank/pkg/domain"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qbank",
		Short:         "Manage sequence identifiers of question bank collections",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "qbank.yaml", "Path to a YAML or TOML config file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	root.AddCommand(
		newCollectionsCmd(a),
		newCreateCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newDeleteCmd(a),
		newRegenerateCmd(a),
		newRenumberCmd(a),
		newCheckCmd(a),
		newExportCmd(a),
		newArchivedCmd(a),
	)
	return root
}

// run executes one command line and always releases what open acquired,
// including when the command itself failed.
func run(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newCollectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List configured collections",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tEXAMPLE\tALLOCATOR\tRENUMBER ON DELETE")
			for _, spec := range a.svc.Registry().Specs() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", spec.Name, spec.Format, spec.Policy, spec.Contiguous())
			}
			return tw.Flush()
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		file       string
		provenance string
	)
	cmd := &cobra.Command{
		Use:   "create <collection> [payload-json...]",
		Short: "Create entities from JSON payloads",
		Long: "Create one entity per JSON payload argument. With --file, the file holds a\n" +
			"single JSON object or an array of objects; '-' reads standard input.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := collectPayloads(cmd.InOrStdin(), file, args[1:])
			if err != nil {
				return err
			}
			created, err := a.svc.Create(cmd.Context(), args[0], payloads, domain.Provenance(provenance))
			if err != nil {
				return err
			}
			for _, e := range created {
				fmt.Fprintf(a.out, "created %s (%s)\n", e.SequenceID, e.InternalID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read payloads from a JSON file")
	cmd.Flags().StringVar(&provenance, "provenance", "", "manual or bulk (default depends on batch size)")
	return cmd
}

func collectPayloads(stdin io.Reader, file string, args []string) ([]domain.Payload, error) {
	var payloads []domain.Payload
	for _, arg := range args {
		if !json.Valid([]byte(arg)) {
			return nil, fmt.Errorf("%w: payload %q is not valid JSON", domain.ErrInvalidInput, arg)
		}
		payloads = append(payloads, domain.NewPayload(json.RawMessage(arg)))
	}
	if file == "" {
		return payloads, nil
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read payloads: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, file, err)
		}
		for _, item := range items {
			payloads = append(payloads, domain.NewPayload(item))
		}
		return payloads, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", domain.ErrInvalidInput, file)
	}
	return append(payloads, domain.NewPayload(json.RawMessage(trimmed))), nil
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List entities in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := a.svc.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.out, entities)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tINTERNAL\tPROVENANCE\tCREATED")
			for _, e := range entities {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.SequenceID, e.InternalID, e.Provenance, e.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entities as JSON")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print one entity as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.svc.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(a.out, e)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete an entity and renumber the rest of the collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, id := args[0], args[1]
			if !yes {
				ok, err := a.confirm.Confirm(fmt.Sprintf("Delete %s from %s? Later entities will be renumbered.", id, collection))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "aborted")
					return nil
				}
			}
			report, err := a.svc.DeleteAndRenumber(cmd.Context(), collection, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", id)
			for _, m := range report.Moves {
				fmt.Fprintf(a.out, "  %s -> %s\n", m.From, m.To)
			}
			switch {
			case report.ArchiveErr != nil:
				fmt.Fprintf(a.out, "warning: archive failed: %v\n", report.ArchiveErr)
			case report.ArchiveKey != "":
				fmt.Fprintf(a.out, "archived to %s\n", report.ArchiveKey)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newRegenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <collection> <id>",
		Short: "Clone an entity's payload into a new entity at the end of the collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clone, err := a.svc.Regenerate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "regenerated %s as %s\n", args[1], clone.SequenceID)
			return nil
		},
	}
}

func newRenumberCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renumber <collection>",
		Short: "Compact a collection onto 1..N in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.svc.Renumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(report.Moves) == 0 {
				fmt.Fprintf(a.out, "%s already contiguous\n", report.Collection)
				return nil
			}
			for _, m := range report.Moves {
				fmt.Fprintf(a.out, "%s -> %s\n", m.From, m.To)
			}
			return nil
		},
	}
}

// errViolations makes check exit non-zero without repeating the report.
var errViolations = errors.New("collection rules violated")

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [collection...]",
		Short: "Verify uniqueness and contiguity (all collections by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, spec := range a.svc.Registry().Specs() {
					args = append(args, spec.Name)
				}
			}
			failed := false
			for _, collection := range args {
				res, err := a.svc.Verify(cmd.Context(), collection)
				if err != nil {
					return err
				}
				if len(res.Violations) == 0 {
					fmt.Fprintf(a.out, "%s: ok\n", collection)
					continue
				}
				failed = failed || res.HasBlocking()
				for _, v := range res.Violations {
					fmt.Fprintf(a.out, "%s: [%s] %s\n", collection, v.Rule, v.Message)
				}
			}
			if failed {
				return errViolations
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <collection>",
		Short: "Write a JSON snapshot of a collection to the archive store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.svc.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, key)
			return nil
		},
	}
}

func newArchivedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archived <collection>",
		Short: "List archived deletions of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.svc.Archived(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
