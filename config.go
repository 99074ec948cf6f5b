package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultSettingsPath = "sync.yaml"

// ListNames holds the Wekan list titles for each workflow stage group.
type ListNames struct {
	Inbox          string `yaml:"inbox"`
	Proof          string `yaml:"proof"`
	Copyediting    string `yaml:"copyediting"`
	Production     string `yaml:"production"`
	PostProduction string `yaml:"post_production"`
	Control        string `yaml:"control"`
}

// SwimlaneNames holds the Wekan swimlane titles for each product group.
type SwimlaneNames struct {
	Journals   string `yaml:"journals"`
	BookSeries string `yaml:"book_series"`
	Anthology  string `yaml:"anthology"`
	Monograph  string `yaml:"monograph"`
}

// ChecklistTemplate is a static checklist attached to newly created cards.
type ChecklistTemplate struct {
	Title string   `yaml:"title" json:"title"`
	Items []string `yaml:"items" json:"items"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	Board              string                       `yaml:"board"`
	DefaultLocale      string                       `yaml:"default_locale"`
	DefaultSectionName string                       `yaml:"default_section_name"`
	MaxConcurrent      int                          `yaml:"max_concurrent"`
	Lists              ListNames                    `yaml:"lists"`
	Swimlanes          SwimlaneNames                `yaml:"swimlanes"`
	Checklists         map[string]ChecklistTemplate `yaml:"checklists"`
}

// Credentials holds the connection settings for both remote systems.
// They are never read from the settings file.
type Credentials struct {
	OJSURL        string
	OJSToken      string
	WekanURL      string
	WekanUsername string
	WekanPassword string
}

// defaultSettings returns the built-in configuration. The list and swimlane
// titles match the board layout used by the editorial office.
func defaultSettings() *Settings {
	return &Settings{
		Board:         "Testboard",
		DefaultLocale: "de_DE",
		MaxConcurrent: 4,
		Lists: ListNames{
			Inbox:          "Vorlauf",
			Proof:          "Prüfung",
			Copyediting:    "Lektorat",
			Production:     "Satz / Produktion",
			PostProduction: "Post-Produktion",
			Control:        "Kontrolle",
		},
		Swimlanes: SwimlaneNames{
			Journals:   "Zeitschriften",
			BookSeries: "Schriftenreihen",
			Anthology:  "Sammelbände",
			Monograph:  "Monographien",
		},
		Checklists: map[string]ChecklistTemplate{
			"journal": {
				Title: "Stammdaten",
				Items: []string{"Impressum geprüft", "Ansprechpartner aktuell"},
			},
			"issue": {
				Title: "Heftplanung",
				Items: []string{"Inhaltsverzeichnis vollständig", "Umschlag freigegeben", "DOI registriert"},
			},
			"submission": {
				Title: "Redaktion",
				Items: []string{"Metadaten geprüft", "Fahnenkorrektur", "Freigabe Autor"},
			},
		},
	}
}

// LoadSettings loads settings with the following precedence:
//  1. Environment variables (recognized override keys)
//  2. YAML settings file
//  3. Built-in defaults
func LoadSettings(path string) (*Settings, error) {
	settings := defaultSettings()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	applyEnvOverrides(settings)
	return settings, nil
}

// applyEnvOverrides applies the recognized environment override keys on top
// of the loaded settings.
func applyEnvOverrides(settings *Settings) {
	setIfEnv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setIfEnv(&settings.Board, "DEMO_BOARD_NAME")
	setIfEnv(&settings.DefaultSectionName, "DEFAULT_SECTION_NAME")

	setIfEnv(&settings.Lists.Inbox, "PROCESS_GROUP_INBOX")
	setIfEnv(&settings.Lists.Proof, "PROCESS_GROUP_PROOF")
	setIfEnv(&settings.Lists.Copyediting, "PROCESS_GROUP_COPYEDITING")
	setIfEnv(&settings.Lists.Production, "PROCESS_GROUP_PRODUCTION")
	setIfEnv(&settings.Lists.PostProduction, "PROCESS_GROUP_POST_PRODUCTION")
	setIfEnv(&settings.Lists.Control, "PROCESS_GROUP_CONTROL")

	setIfEnv(&settings.Swimlanes.Journals, "PRODUCT_GROUP_JOURNALS")
	setIfEnv(&settings.Swimlanes.BookSeries, "PRODUCT_GROUP_BOOKSERIES")
	setIfEnv(&settings.Swimlanes.Anthology, "PRODUCT_GROUP_ANTHOLOGY")
	setIfEnv(&settings.Swimlanes.Monograph, "PRODUCT_GROUP_MONOGRAPH")

	// Checklist templates may be supplied as JSON, one env key per category.
	for category, key := range map[string]string{
		"journal":    "CHECKLIST_TEMPLATE_JOURNAL",
		"issue":      "CHECKLIST_TEMPLATE_ISSUE",
		"submission": "CHECKLIST_TEMPLATE_SUBMISSION",
	} {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		var tmpl ChecklistTemplate
		if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
			warnLog("Ignoring invalid %s: %v", key, err)
			continue
		}
		settings.Checklists[category] = tmpl
	}
}

// LoadCredentials reads connection settings from the environment after
// loading .env and .secrets.env if present.
func LoadCredentials() (*Credentials, error) {
	_ = godotenv.Load()
	_ = godotenv.Load(".secrets.env")

	creds := &Credentials{
		OJSURL:        os.Getenv("OJS_URL"),
		OJSToken:      os.Getenv("OJS_PASSWORD"),
		WekanURL:      os.Getenv("WEKAN_URL"),
		WekanUsername: os.Getenv("WEKAN_USERNAME"),
		WekanPassword: os.Getenv("WEKAN_PASSWORD"),
	}

	var missing []string
	for key, value := range map[string]string{
		"OJS_URL":        creds.OJSURL,
		"OJS_PASSWORD":   creds.OJSToken,
		"WEKAN_URL":      creds.WekanURL,
		"WEKAN_USERNAME": creds.WekanUsername,
		"WEKAN_PASSWORD": creds.WekanPassword,
	} {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing environment variables: %v", missing)
	}

	return creds, nil
}

// ensureSettingsExists writes the default settings file on first run so the
// board layout can be customized without consulting the source.
func ensureSettingsExists(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := yaml.Marshal(defaultSettings())
	if err != nil {
		return fmt.Errorf("marshaling default settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing default settings: %w", err)
	}

	return nil
}
