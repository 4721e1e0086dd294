package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/config"
)

// setupAnswers are the values collected by the setup wizard.
type setupAnswers struct {
	DataDir     string
	Driver      string
	OCREngines  []string
	ASREngine   string
	Sentiment   string
	Address     string
	APIKey      string
	UseKeyring  bool
	ConfirmSave bool
}

// newSetupCmd creates the `memoriavault setup` command, an interactive
// wizard that writes the config file and stores the API key.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create or update the configuration interactively",
		Long: `Walk through storage, extraction engines and the HTTP address, then
write the config file. The OpenAI API key goes to the OS keyring when one
is available and is never written to the config file.

Examples:
  memoriavault setup
  memoriavault setup --config ~/.config/memoriavault/memoriavault.yaml
  memoriavault setup --key-only`,
		Args: cobra.NoArgs,
		RunE: runSetup,
	}
	cmd.Flags().Bool("key-only", false, "only store the OpenAI API key in the OS keyring")
	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	if keyOnly, _ := cmd.Flags().GetBool("key-only"); keyOnly {
		return setupKeyOnly(cmd)
	}

	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	if configPath == "" {
		configPath = "memoriavault.yaml"
	}

	cfg := config.DefaultConfig()
	if existing, err := config.LoadConfigFromFile(configPath); err == nil {
		cfg = existing
	}

	keyringOK := config.KeyringAvailable()
	ans := setupAnswers{
		DataDir:     cfg.DataDir,
		Driver:      cfg.Database.Driver,
		OCREngines:  cfg.Extraction.OCR.Engines,
		ASREngine:   cfg.Extraction.ASR.Engine,
		Sentiment:   cfg.Extraction.Sentiment.Engine,
		Address:     cfg.Gateway.Address,
		UseKeyring:  keyringOK,
		ConfirmSave: true,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Database and media files live here").
				Value(&ans.DataDir).
				Validate(notEmpty("data directory")),
			huh.NewSelect[string]().
				Title("Record store").
				Options(
					huh.NewOption("SQLite (persistent)", config.DriverSQLite),
					huh.NewOption("In memory (lost on exit)", config.DriverMemory),
				).
				Value(&ans.Driver),
			huh.NewInput().
				Title("HTTP address").
				Value(&ans.Address).
				Validate(notEmpty("address")),
		).Title("Storage"),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("OCR engines, tried in order").
				Options(
					huh.NewOption("Tesseract (local)", config.EngineTesseract),
					huh.NewOption("OpenAI vision", config.EngineOpenAI),
				).
				Value(&ans.OCREngines),
			huh.NewSelect[string]().
				Title("Transcription").
				Options(
					huh.NewOption("OpenAI Whisper", config.EngineOpenAI),
					huh.NewOption("Disabled", config.EngineNone),
				).
				Value(&ans.ASREngine),
			huh.NewSelect[string]().
				Title("Sentiment").
				Options(
					huh.NewOption("Lexicon (offline)", config.EngineLexicon),
					huh.NewOption("OpenAI", config.EngineOpenAI),
					huh.NewOption("Disabled", config.EngineNone),
				).
				Value(&ans.Sentiment),
		).Title("Extraction"),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key").
				Description("Leave empty to keep the current key").
				EchoMode(huh.EchoModePassword).
				Value(&ans.APIKey),
			huh.NewConfirm().
				Title("Store the key in the OS keyring?").
				Affirmative("Yes").
				Negative("No").
				Value(&ans.UseKeyring),
		).Title("OpenAI"),
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Write %s?", configPath)).
				Value(&ans.ConfirmSave),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
		return err
	}
	if !ans.ConfirmSave {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing written.")
		return nil
	}

	applySetup(cfg, ans)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveConfigToFile(cfg, configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", configPath)

	if ans.APIKey != "" {
		return storeAPIKey(cmd, ans.APIKey, ans.UseKeyring && keyringOK)
	}
	return nil
}

// applySetup copies wizard answers into cfg. Data paths follow the data
// directory.
func applySetup(cfg *config.Config, ans setupAnswers) {
	dataDir := strings.TrimSpace(ans.DataDir)
	if dataDir != cfg.DataDir {
		cfg.DataDir = dataDir
		cfg.Database.Path = filepath.Join(dataDir, "memoriavault.db")
		cfg.Media.BaseDir = filepath.Join(dataDir, "media")
	}
	cfg.Database.Driver = ans.Driver
	cfg.Extraction.OCR.Engines = ans.OCREngines
	cfg.Extraction.ASR.Engine = ans.ASREngine
	cfg.Extraction.Sentiment.Engine = ans.Sentiment
	cfg.Gateway.Address = strings.TrimSpace(ans.Address)
}

func setupKeyOnly(cmd *cobra.Command) error {
	if !config.KeyringAvailable() {
		return errors.New("OS keyring is not available; set OPENAI_API_KEY in the environment or a .env file")
	}
	key, err := config.ReadPassword("OpenAI API key: ")
	if err != nil {
		return err
	}
	if key == "" {
		return errors.New("no key entered")
	}
	return storeAPIKey(cmd, key, true)
}

func storeAPIKey(cmd *cobra.Command, key string, useKeyring bool) error {
	if !useKeyring {
		fmt.Fprintln(cmd.OutOrStdout(), "Add the key to your environment or a .env file:")
		fmt.Fprintln(cmd.OutOrStdout(), "  OPENAI_API_KEY=<your key>")
		return nil
	}
	if err := config.StoreKeyring(config.KeyringAPIKey, key); err != nil {
		return fmt.Errorf("storing key in keyring: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key stored in the OS keyring.")
	return nil
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
