package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bionicotaku/lingo-utils-jwthelper"
	"github.com/bionicotaku/lingo-utils-jwthelper/internal/config"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var logger = xlog.NewPackageLogger("github.com/bionicotaku/lingo-utils-jwthelper", "cli")

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var (
		cfgFile string
		cfg     *config.Config
	)
	d := config.Default()

	root := &cobra.Command{
		Use:          "jwthelper",
		Short:        "Issue and verify RS256 bearer tokens",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
			if cfg.Debug {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.ERROR)
			}
			logger.KV(xlog.DEBUG, "status", "config_loaded", "config", cfg.String())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or .env)")
	flags.String("private-key-file", d.PrivateKeyFile, "encrypted PKCS#8 private key PEM (env JWTHELPER_PRIVATE_KEY_FILE)")
	flags.String("public-key-file", d.PublicKeyFile, "public key PEM (env JWTHELPER_PUBLIC_KEY_FILE)")
	flags.Uint64("expiry-seconds", d.ExpirySeconds, "token lifetime in seconds (env JWTHELPER_EXPIRY_SECONDS)")
	flags.Uint64("leeway-seconds", d.LeewaySeconds, "clock skew tolerance in seconds (env JWTHELPER_LEEWAY_SECONDS)")
	flags.Bool("debug", d.Debug, "enable debug logging (env JWTHELPER_DEBUG)")
	if err := bindFlags(v, flags, map[string]string{
		"private_key_file": "private-key-file",
		"public_key_file":  "public-key-file",
		"expiry_seconds":   "expiry-seconds",
		"leeway_seconds":   "leeway-seconds",
		"debug":            "debug",
	}); err != nil {
		panic(err)
	}

	helper := func(validate func() error) (*jwthelper.Helper, error) {
		if err := validate(); err != nil {
			return nil, err
		}
		b, err := cfg.Builder()
		if err != nil {
			return nil, err
		}
		return b.Build(), nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "issue SUBJECT",
			Short: "Issue a signed token for SUBJECT (passphrase from JWTHELPER_PASSPHRASE)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				h, err := helper(func() error { return cfg.ValidateIssuer() })
				if err != nil {
					return err
				}
				token, err := h.Issue(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			},
		},
		&cobra.Command{
			Use:   "verify [TOKEN|-]",
			Short: "Verify a token and print its subject; reads stdin when TOKEN is - or omitted",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				h, err := helper(func() error { return cfg.ValidateVerifier() })
				if err != nil {
					return err
				}
				token := "-"
				if len(args) == 1 {
					token = args[0]
				}
				if token == "-" {
					token, err = readToken(cmd.InOrStdin())
					if err != nil {
						return err
					}
				}
				subject, err := h.Verify(token)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), subject)
				return err
			},
		},
		&cobra.Command{
			Use:   "jwks",
			Short: "Print the public key as a JWKS document",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := cfg.ValidateVerifier(); err != nil {
					return err
				}
				pub, err := cfg.PublicKey()
				if err != nil {
					return err
				}
				set, err := jwthelper.PublicKeySet(pub)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(set, "", "  ")
				if err != nil {
					return errors.Wrap(err, "encode jwks")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			},
		},
	)
	return root
}

// bindFlags binds each config key to its named flag. An unknown flag name is
// an error.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keyToFlag map[string]string) error {
	for key, name := range keyToFlag {
		flag := flags.Lookup(name)
		if flag == nil {
			return errors.Newf("flag %q for key %q is not defined", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "bind flag %q", name)
		}
	}
	return nil
}

// readToken reads the first non-empty line from r.
func readToken(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "read token")
	}
	return "", errors.New("no token on stdin")
}
