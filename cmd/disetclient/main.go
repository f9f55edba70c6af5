// Command disetclient is a small command-line harness over pkg/diset,
// exercising the base client facade end to end: resolve a service, open a
// transport, propose an action, print the result. Grounded on the teacher's
// cmd/edgectl (github.com/spf13/cobra root command plus one subcommand per
// verb, persistent flags for cross-cutting config).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/DIRACGrid/diset/pkg/diset"
	"github.com/DIRACGrid/diset/pkg/diset/config"
	"github.com/DIRACGrid/diset/pkg/diset/dlogging"

	_ "github.com/DIRACGrid/diset/pkg/diset/protocol/disetproto"
	_ "github.com/DIRACGrid/diset/pkg/diset/protocol/grpcproto"
)

const displayVersion = "(unknown version)"

// Version is inserted at build using --ldflags -X.
var Version = displayVersion

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configFile string
	site       string
	useCertDef bool
	debug      bool
}

func rootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:          "disetclient",
		Short:        "Talk to a DIRAC DISET service endpoint",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to a YAML config document (DIRAC CS snapshot shape)")
	cmd.PersistentFlags().StringVar(&flags.site, "site", "", "local site name, used for gateway lookup")
	cmd.PersistentFlags().BoolVar(&flags.useCertDef, "use-certificates-default", false, "site-wide default for UseServerCertificateDefault (not read from the --config document)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(versionCmd(), stubCmd(flags), connectCmd(flags), proposeCmd(flags))
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		RunE: func(*cobra.Command, []string) error {
			fmt.Println("disetclient", Version)
			return nil
		},
	}
}

type actionFlags struct {
	destinationService string
	setup              string
	vo                 string
	ignoreGateways     bool
	useCertificates    bool
	extra              string
}

func bindActionFlags(cmd *cobra.Command, f *actionFlags) {
	cmd.Flags().StringVar(&f.setup, "setup", "", "DIRAC setup name (overrides config/env default)")
	cmd.Flags().StringVar(&f.vo, "vo", "", "virtual organization (overrides config/env default)")
	cmd.Flags().BoolVar(&f.ignoreGateways, "ignore-gateways", false, "bypass site gateway rewriting")
	cmd.Flags().BoolVar(&f.useCertificates, "use-certificates", false, "authenticate with host/server certificates")
	cmd.Flags().StringVar(&f.extra, "extra-credentials", "", "explicit extraCredentials sentinel (e.g. \"hosts\")")
}

func stubCmd(rf *rootFlags) *cobra.Command {
	af := &actionFlags{}
	cmd := &cobra.Command{
		Use:   "stub DESTINATION_SERVICE",
		Short: "Resolve a service and print its BaseStub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			af.destinationService = args[0]
			ctx := setupContext(rf)
			client, err := newClient(ctx, rf, af)
			if err != nil {
				return err
			}
			path, stub, err := client.BaseStub(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("serviceName: %s\n", path)
			for k, v := range stub {
				fmt.Printf("%s: %s\n", k, v)
			}
			return nil
		},
	}
	bindActionFlags(cmd, af)
	return cmd
}

func connectCmd(rf *rootFlags) *cobra.Command {
	af := &actionFlags{}
	cmd := &cobra.Command{
		Use:   "connect DESTINATION_SERVICE",
		Short: "Open a transport to a service and immediately disconnect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			af.destinationService = args[0]
			ctx := setupContext(rf)
			client, err := newClient(ctx, rf, af)
			if err != nil {
				return err
			}
			h, err := client.Connect(ctx)
			if err != nil {
				return err
			}
			dlog.Infof(ctx, "connected, handle=%s", h)
			return client.Disconnect(ctx, h)
		},
	}
	bindActionFlags(cmd, af)
	return cmd
}

func proposeCmd(rf *rootFlags) *cobra.Command {
	af := &actionFlags{}
	cmd := &cobra.Command{
		Use:   "propose DESTINATION_SERVICE ACTION",
		Short: "Connect, propose an action, and print the response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			af.destinationService = args[0]
			action := args[1]
			ctx := setupContext(rf)
			client, err := newClient(ctx, rf, af)
			if err != nil {
				return err
			}
			h, err := client.Connect(ctx)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx, h) //nolint:errcheck

			resp, err := client.ProposeAction(ctx, h, action)
			if err != nil {
				return err
			}
			if resp.IsOK() {
				v, _ := resp.Value()
				fmt.Printf("OK: %v\n", v)
				return nil
			}
			fmt.Printf("ERROR: %v\n", resp.Err())
			return resp.Err()
		},
	}
	bindActionFlags(cmd, af)
	return cmd
}

func setupContext(rf *rootFlags) context.Context {
	level := dlogging.LevelInfo
	if rf.debug {
		level = dlogging.LevelDebug
	}
	return dlogging.NewContext(context.Background(), level)
}

func newClient(ctx context.Context, rf *rootFlags, af *actionFlags) (*diset.Client, error) {
	store, err := loadStore(rf)
	if err != nil {
		return nil, err
	}

	opts := diset.Options{IgnoreGateways: af.ignoreGateways}
	if af.setup != "" {
		opts.Setup = &af.setup
	}
	if af.vo != "" {
		opts.VO = &af.vo
	}
	if af.useCertificates {
		opts.UseCertificates = &af.useCertificates
	}
	if af.extra != "" {
		opts.ExtraCredentials = &af.extra
	}

	deps := diset.Dependencies{
		Store:     store,
		Groups:    staticGroupResolver{group: "dirac_user"},
		Flattener: joinChainFlattener{},
	}
	return diset.NewClient(ctx, af.destinationService, opts, deps)
}

func loadStore(rf *rootFlags) (config.Store, error) {
	var store config.Store
	if rf.configFile != "" {
		yamlStore, err := config.LoadYAMLFile(rf.configFile, rf.site, rf.useCertDef)
		if err != nil {
			return nil, err
		}
		store = yamlStore
	} else {
		store = config.NewYAMLStore(nil, rf.site, rf.useCertDef)
	}
	env, err := config.LoadEnv(context.Background())
	if err != nil {
		return nil, err
	}
	return config.NewEnvOverlay(store, env), nil
}

// staticGroupResolver is the CLI's stand-in for the security-service
// DN->group lookup spec.md §1 scopes as an external collaborator; it never
// pretends to replace one, just unblocks ad hoc stub/propose runs against a
// host that does not gate on the group.
type staticGroupResolver struct{ group string }

func (s staticGroupResolver) DefaultGroupForDN(context.Context, string) (string, error) {
	return s.group, nil
}

// joinChainFlattener is the CLI's stand-in for a real proxy-chain flattener
// (another out-of-scope external collaborator, spec.md §1): it treats the
// chain bytes as already being the flattened string, which is correct for
// the common case of a single-certificate "chain".
type joinChainFlattener struct{}

func (joinChainFlattener) Flatten(chain []byte) (string, error) {
	return string(chain), nil
}
