package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"chauffe/internal/cloudmanager"
	"chauffe/internal/compat"
	"chauffe/internal/dloid"
	"chauffe/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type createOptions struct {
	owner      string
	name       string
	firstName  string
	lastName   string
	licenses   int
	dloid      string
	role       string
	difficulty int
}

var (
	createOpts createOptions
	nameOpts   cloudmanager.ControllerNameRequest
)

// commandContext cancels on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newClient builds a client from the loaded config. When a compatibility file
// is configured it is loaded and watched until the returned stop func runs.
func newClient(ctx context.Context) (*cloudmanager.Client, func(), error) {
	client, err := cloudmanager.New(clientConfig(cfg), logging.Get(logging.CategoryAPI))
	if err != nil {
		return nil, nil, err
	}
	stop := func() {}

	if file := cfg.Compatibility.File; file != "" {
		w, err := compat.NewWatcher(file, client.Negotiator(), logging.Get(logging.CategoryCompat))
		if err != nil {
			return nil, nil, err
		}
		if err := w.Start(ctx); err != nil {
			logging.Get(logging.CategoryCompat).Warn("Compatibility file not watched", zap.Error(err))
			_ = w.Stop()
		} else {
			stop = func() { _ = w.Stop() }
		}
	}
	return client, stop, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, stop, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer stop()

	v := client.CheckHealth(ctx)
	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, v); err != nil {
			return err
		}
	} else {
		version := v.Version
		if version == "" {
			version = "(not reported)"
		}
		fmt.Fprintln(out, box(
			title("CloudManager health"),
			row("Service", client.BaseURL()),
			row("Verdict", verdictBadge(v)),
			row("Version", version),
			row("Compatible with", fmt.Sprint(client.Negotiator().Set().Versions())),
			mutedStyle.Render(v.Message),
		))
	}

	if v.State == compat.Unavailable {
		return errors.New("CloudManager is unavailable")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, stop, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer stop()

	list, err := client.ListBlockchains(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{"count": list.Count, "items": list.Items})
	}

	fmt.Fprintln(out, title(fmt.Sprintf("%d blockchains", list.Count)))
	for _, bc := range list.Items {
		controller := bc.ControllerName
		if controller == "" {
			controller = "-"
		}
		fmt.Fprintf(out, "  %-36s  %-24s  owner %s  controller %s\n", bc.ID, bc.Name, bc.OwnerID, controller)
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	if createOpts.dloid == "" {
		return errors.New("--dloid is required")
	}
	fields, err := dloid.Decode(createOpts.dloid)
	if err != nil {
		return fmt.Errorf("invalid --dloid: %w", err)
	}
	for _, adv := range fields.Advisories() {
		logging.Get(logging.CategoryAPI).Warn("DLOID flag outside the known vocabulary", zap.String("advisory", adv))
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, stop, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer stop()

	res, err := client.CreateBlockchain(ctx, cloudmanager.CreateRequest{
		Name:             createOpts.name,
		FirstName:        createOpts.firstName,
		LastName:         createOpts.lastName,
		ExistingLicenses: createOpts.licenses,
		OwnerID:          createOpts.owner,
		DLOID:            fields,
		ControllerRole:   createOpts.role,
		Difficulty:       createOpts.difficulty,
	})
	if err != nil {
		var rerr *cloudmanager.RemoteError
		if errors.As(err, &rerr) && rerr.OutcomeUnknown() {
			return fmt.Errorf("%w (the blockchain may have been created; list before retrying)", err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	lines := []string{
		title("Blockchain created"),
		row("Blockchain", res.BlockchainID),
		row("Controller", res.ControllerName),
		row("Verdict", verdictBadge(res.Compatibility)),
	}
	if res.Warning {
		lines = append(lines, warnStyle.Render(res.Compatibility.Message))
	}
	fmt.Fprintln(out, box(lines...))
	return nil
}

func runGenerateName(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, stop, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer stop()

	res, err := client.GenerateControllerName(ctx, nameOpts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	fmt.Fprintln(out, res.ControllerName)
	if res.Warning {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(res.Compatibility.Message))
	}
	return nil
}
