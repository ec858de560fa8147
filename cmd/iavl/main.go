// Command iavl inspects and exercises versioned Merkle-AVL tree databases.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SupperZum/iavl"
	"github.com/SupperZum/iavl/db"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type cliContext struct {
	cfg    Config
	logger log.Logger
}

func rootCommand() *cobra.Command {
	ctx := &cliContext{}
	var configPath string

	cmd := &cobra.Command{
		Use:           "iavl",
		Short:         "Inspect and exercise versioned merkle-avl tree databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Optional TOML config file; flags override it.")
	flags.String("db", "", "Path to the LevelDB database directory.")
	flags.String("store", "", "Optional store name; namespaces the tree inside the database.")
	flags.Int("cache-size", iavl.DefaultCacheSize, "Node cache capacity.")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error.")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := DefaultConfig()
		if configPath != "" {
			var err error
			cfg, err = LoadConfig(configPath)
			if err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("db") || cfg.DB == "" {
			cfg.DB, _ = cmd.Flags().GetString("db")
		}
		if cmd.Flags().Changed("store") {
			cfg.Store, _ = cmd.Flags().GetString("store")
		}
		if cmd.Flags().Changed("cache-size") {
			cfg.CacheSize, _ = cmd.Flags().GetInt("cache-size")
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		ctx.cfg = cfg
		ctx.logger = logger
		return nil
	}

	cmd.AddCommand(
		versionsCommand(ctx),
		rootHashCommand(ctx),
		getCommand(ctx),
		setCommand(ctx),
		deleteCommand(ctx),
		rangeCommand(ctx),
		dotCommand(ctx),
		benchCommand(ctx),
	)
	return cmd
}

func newLogger(level string) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q, %w", level, err)
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
	return log.NewCustomLogger(zl), nil
}

// openDB opens the configured database, namespaced per store when one is
// given, the same way multi-store setups prefix per store key.
func (ctx *cliContext) openDB() (db.DB, func(), error) {
	if ctx.cfg.DB == "" {
		return nil, nil, fmt.Errorf("no database path configured; set --db")
	}
	ldb, err := db.NewGoLevelDB(ctx.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	closer := func() { _ = ldb.Close() }
	if ctx.cfg.Store != "" {
		prefix := fmt.Sprintf("s/k:%s/", ctx.cfg.Store)
		return db.NewPrefixDB(ldb, []byte(prefix)), closer, nil
	}
	return ldb, closer, nil
}

func (ctx *cliContext) openTree(version uint32) (*iavl.Tree, func(), error) {
	database, closer, err := ctx.openDB()
	if err != nil {
		return nil, nil, err
	}
	opts := iavl.Options{CacheSize: ctx.cfg.CacheSize, Logger: ctx.logger}

	var tree *iavl.Tree
	if version == 0 {
		tree, err = iavl.New(database, opts)
	} else {
		tree, err = iavl.Load(database, version, opts)
	}
	if err != nil {
		closer()
		return nil, nil, err
	}
	return tree, closer, nil
}

func versionsCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List saved versions and their root hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, closer, err := ctx.openTree(0)
			if err != nil {
				return err
			}
			defer closer()

			ndb := tree.NodeDB()
			for _, v := range tree.Versions() {
				hash, err := ndb.GetRootHash(v)
				if err != nil {
					return err
				}
				fmt.Printf("%d\t%X\n", v, hash)
			}
			return nil
		},
	}
}

func rootHashCommand(ctx *cliContext) *cobra.Command {
	var version uint32
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Print the root hash of a version (default latest)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, closer, err := ctx.openTree(version)
			if err != nil {
				return err
			}
			defer closer()

			fmt.Printf("version=%d root=%X\n", tree.LoadedVersion(), tree.RootHash())
			return nil
		},
	}
	cmd.Flags().Uint32Var(&version, "version", 0, "Version to load; 0 means latest.")
	return cmd
}

func getCommand(ctx *cliContext) *cobra.Command {
	var version uint32
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Look up a key at a version (default latest)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			tree, closer, err := ctx.openTree(version)
			if err != nil {
				return err
			}
			defer closer()

			value := tree.Get(key)
			if value == nil {
				return fmt.Errorf("key %s not found at version %d", args[0], tree.LoadedVersion())
			}
			fmt.Printf("0x%X\n", value)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&version, "version", 0, "Version to load; 0 means latest.")
	return cmd
}

func setCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key and save a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			value, err := parseKey(args[1])
			if err != nil {
				return err
			}
			tree, closer, err := ctx.openTree(0)
			if err != nil {
				return err
			}
			defer closer()

			tree.Set(key, value)
			hash, version, err := tree.SaveVersion()
			if err != nil {
				return err
			}
			fmt.Printf("version=%d root=%X\n", version, hash)
			return nil
		},
	}
}

func deleteCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key and save a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			tree, closer, err := ctx.openTree(0)
			if err != nil {
				return err
			}
			defer closer()

			if tree.Remove(key) == nil {
				return fmt.Errorf("key %s not found", args[0])
			}
			hash, version, err := tree.SaveVersion()
			if err != nil {
				return err
			}
			fmt.Printf("version=%d root=%X\n", version, hash)
			return nil
		},
	}
}

func rangeCommand(ctx *cliContext) *cobra.Command {
	var (
		version      uint32
		start, end   string
		excludeStart bool
		includeEnd   bool
		limit        int
	)
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Iterate keys in a range at a version (default latest)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, closer, err := ctx.openTree(version)
			if err != nil {
				return err
			}
			defer closer()

			var startBound, endBound *iavl.Bound
			if start != "" {
				key, err := parseKey(start)
				if err != nil {
					return err
				}
				if excludeStart {
					startBound = iavl.ExcludeKey(key)
				} else {
					startBound = iavl.IncludeKey(key)
				}
			}
			if end != "" {
				key, err := parseKey(end)
				if err != nil {
					return err
				}
				if includeEnd {
					endBound = iavl.IncludeKey(key)
				} else {
					endBound = iavl.ExcludeKey(key)
				}
			}

			count := 0
			r := tree.Range(startBound, endBound)
			for key, value, ok := r.Next(); ok; key, value, ok = r.Next() {
				fmt.Printf("0x%X\t0x%X\n", key, value)
				count++
				if limit > 0 && count >= limit {
					break
				}
			}
			ctx.logger.Debug("range done", "pairs", count)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&version, "version", 0, "Version to load; 0 means latest.")
	cmd.Flags().StringVar(&start, "start", "", "Start key (inclusive unless --exclude-start).")
	cmd.Flags().StringVar(&end, "end", "", "End key (exclusive unless --include-end).")
	cmd.Flags().BoolVar(&excludeStart, "exclude-start", false, "Make the start bound exclusive.")
	cmd.Flags().BoolVar(&includeEnd, "include-end", false, "Make the end bound inclusive.")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many pairs; 0 means no limit.")
	return cmd
}

func dotCommand(ctx *cliContext) *cobra.Command {
	var version uint32
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Dump a version's tree as a Graphviz digraph",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, closer, err := ctx.openTree(version)
			if err != nil {
				return err
			}
			defer closer()

			fmt.Print(tree.RenderDotGraph())
			return nil
		},
	}
	cmd.Flags().Uint32Var(&version, "version", 0, "Version to load; 0 means latest.")
	return cmd
}

// parseKey reads a 0x-prefixed hex key, or takes the argument bytes as-is.
func parseKey(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		bz, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("parsing hex key %q, %w", s, err)
		}
		return bz, nil
	}
	return []byte(s), nil
}
