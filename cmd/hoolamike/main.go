// Command hoolamike installs a Wabbajack-compatible modlist bundle by
// running its directives against a target install directory.
//
// Grounded on the teacher's cmd-level main.go/download.go, which parse
// flags with github.com/alexflint/go-arg and configure a
// github.com/rs/zerolog console writer before doing any work; this
// entrypoint keeps both choices and adds the install-specific flags
// SPEC_FULL.md's external interfaces section (§6) names. The optional
// --config file is layered in with github.com/spf13/viper, the same
// config library the rest of the example pack reaches for, ahead of
// go-arg's flag parsing: viper populates defaults onto the args struct,
// and any flag the user actually passes overrides them.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/nettoneko/hoolamike/internal/install"
)

type args struct {
	Modlist                string   `arg:"positional,required" help:"path to the modlist bundle (.wabbajack) to install"`
	ConfigFile             string   `arg:"--config" help:"optional YAML/JSON/TOML file providing defaults for the flags below"`
	InstallRoot            string   `arg:"--install-root,required" help:"directory to install the modlist into"`
	DownloadsDir           string   `arg:"--downloads" help:"directory containing already-downloaded archives"`
	SpillDir               string   `arg:"--spill" help:"scratch directory for nested-archive extraction and patch bases"`
	DiskBudgetBytes        int64    `arg:"--disk-budget" help:"maximum bytes of scratch disk usage; 0 is unbounded"`
	GamePath               string   `arg:"--game-path" help:"target game's install directory, for $(GAME_PATH) substitution in RemappedInlineFile directives"`
	DocumentsDir           string   `arg:"--documents-dir" help:"directory standing in for the game's Documents folder, for $(DOCUMENTS) substitution"`
	LocalAppDataDir        string   `arg:"--local-appdata-dir" help:"directory standing in for the game's Local AppData folder, for $(LOCAL_APPDATA) substitution"`
	SkipKind               []string `arg:"--skip-kind,separate" help:"directive kind to skip entirely (repeatable)"`
	SkipVerifyAndDownloads bool     `arg:"--skip-verify-and-downloads" help:"skip post-write size/hash verification of installed files; source archives are still located and hash-checked"`
	DownloadSpeedLimitKBps int64    `arg:"--download-speed-limit" help:"maximum aggregate download throughput in KB/s; 0 is unlimited"`
	Verbose                bool     `arg:"-v,--verbose" help:"enable debug logging"`
}

func (args) Version() string {
	return "hoolamike 0.1.0"
}

// loadConfigDefaults pre-scans os.Args for --config, since go-arg needs the
// target struct's zero/default values settled before it parses flags onto
// it; any value a flag actually supplies below still wins.
func loadConfigDefaults(a *args) error {
	path := configFileFromArgs(os.Args[1:])
	if path == "" {
		path = os.Getenv("HOOLAMIKE_CONFIG")
	}
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(a)
}

func configFileFromArgs(argv []string) string {
	for i, a := range argv {
		if a == "--config" && i+1 < len(argv) {
			return argv[i+1]
		}
		if strings.HasPrefix(a, "--config=") {
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func main() {
	var a args
	if err := loadConfigDefaults(&a); err != nil {
		bootLog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
		bootLog.Fatal().Err(err).Msg("loading --config defaults")
	}
	arg.MustParse(&a)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if a.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if a.SpillDir == "" {
		a.SpillDir = a.InstallRoot + "/.hoolamike-tmp"
	}

	cfg := install.Config{
		InstallRoot:            a.InstallRoot,
		DownloadsDir:           a.DownloadsDir,
		SpillDir:               a.SpillDir,
		DiskBudgetBytes:        a.DiskBudgetBytes,
		GamePath:               a.GamePath,
		DocumentsDir:           a.DocumentsDir,
		LocalAppDataDir:        a.LocalAppDataDir,
		SkipKinds:              a.SkipKind,
		SkipVerifyAndDownloads: a.SkipVerifyAndDownloads,
		DownloadSpeedLimitBps:  a.DownloadSpeedLimitKBps * 1024,
	}

	rep, err := install.Install(ctx, a.Modlist, cfg, install.Collaborators{}, log)
	if rep != nil {
		summary := rep.Summary()
		if summary != "" {
			log.Info().Msg(strings.TrimRight(summary, "\n"))
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("install failed")
	}

	exitCode := 0
	if rep != nil {
		exitCode = rep.ExitCode()
	} else if err != nil {
		exitCode = 2
	}
	os.Exit(exitCode)
}
