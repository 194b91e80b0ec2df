package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/loqalabs/salute-gateway/internal/auth"
	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/voice"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath string
		credential string
		lang       string
	)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&configPath, "config", "salute.yaml", "Path to configuration file")
	validateCmd.StringVar(&credential, "credential", "", "Authorization key to check (defaults to speech.credential)")

	voicesCmd := flag.NewFlagSet("voices", flag.ExitOnError)
	voicesCmd.StringVar(&lang, "lang", "", "Only list voices for this language")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'voices' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := runValidate(configPath, credential); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("credential valid")
	case "voices":
		voicesCmd.Parse(os.Args[2:])
		if err := runVoices(lang); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runValidate(path, credential string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	// A validation error is tolerated when the credential comes from the flag;
	// the speech section is checked again below.
	cfg, err := config.Load(path)
	if err != nil && credential == "" {
		return err
	}
	if credential != "" {
		cfg.Speech.Credential = credential
	}
	if err := config.ValidateSpeech(cfg.Speech); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Speech.AuthTimeout())
	defer cancel()

	err = auth.Validate(ctx, cfg.Speech, speech.Credential(cfg.Speech.Credential), logger)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, speech.ErrAuthFailed):
		return errors.New("credential rejected by the authentication endpoint")
	default:
		return fmt.Errorf("authentication endpoint unreachable (%s): %w", speech.Classify(err), err)
	}
}

func runVoices(lang string) error {
	voices := voice.All()
	if lang != "" {
		if !voice.SupportedLanguage(lang) {
			return fmt.Errorf("unsupported language %q", lang)
		}
		voices = voice.ForLanguage(lang)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLANGUAGE")
	for _, v := range voices {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Name, v.Language)
	}
	return w.Flush()
}
