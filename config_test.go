package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearOverrideEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DEMO_BOARD_NAME", "DEFAULT_SECTION_NAME",
		"PROCESS_GROUP_INBOX", "PROCESS_GROUP_PROOF", "PROCESS_GROUP_COPYEDITING",
		"PROCESS_GROUP_PRODUCTION", "PROCESS_GROUP_POST_PRODUCTION", "PROCESS_GROUP_CONTROL",
		"PRODUCT_GROUP_JOURNALS", "PRODUCT_GROUP_BOOKSERIES", "PRODUCT_GROUP_ANTHOLOGY", "PRODUCT_GROUP_MONOGRAPH",
		"CHECKLIST_TEMPLATE_JOURNAL", "CHECKLIST_TEMPLATE_ISSUE", "CHECKLIST_TEMPLATE_SUBMISSION",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	clearOverrideEnv(t)

	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if settings.Board != "Testboard" {
		t.Errorf("Board = %q, want Testboard", settings.Board)
	}
	if settings.Lists.Proof != "Prüfung" {
		t.Errorf("Lists.Proof = %q, want Prüfung", settings.Lists.Proof)
	}
	if settings.Swimlanes.Journals != "Zeitschriften" {
		t.Errorf("Swimlanes.Journals = %q, want Zeitschriften", settings.Swimlanes.Journals)
	}
	if _, ok := settings.Checklists["submission"]; !ok {
		t.Error("default submission checklist missing")
	}
}

func TestLoadSettingsFile(t *testing.T) {
	clearOverrideEnv(t)

	path := filepath.Join(t.TempDir(), "sync.yaml")
	content := "board: Redaktionsboard\nlists:\n  inbox: Eingang\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if settings.Board != "Redaktionsboard" {
		t.Errorf("Board = %q, want Redaktionsboard", settings.Board)
	}
	if settings.Lists.Inbox != "Eingang" {
		t.Errorf("Lists.Inbox = %q, want Eingang", settings.Lists.Inbox)
	}
	// Keys absent from the file keep their defaults.
	if settings.Swimlanes.Journals != "Zeitschriften" {
		t.Errorf("Swimlanes.Journals = %q, want default", settings.Swimlanes.Journals)
	}
}

func TestLoadSettingsEnvOverridesFile(t *testing.T) {
	clearOverrideEnv(t)

	path := filepath.Join(t.TempDir(), "sync.yaml")
	if err := os.WriteFile(path, []byte("board: Redaktionsboard\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DEMO_BOARD_NAME", "Demoboard")
	t.Setenv("PROCESS_GROUP_PROOF", "Begutachtung")

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if settings.Board != "Demoboard" {
		t.Errorf("Board = %q, want env override Demoboard", settings.Board)
	}
	if settings.Lists.Proof != "Begutachtung" {
		t.Errorf("Lists.Proof = %q, want Begutachtung", settings.Lists.Proof)
	}
}

func TestChecklistTemplateFromEnv(t *testing.T) {
	clearOverrideEnv(t)

	t.Setenv("CHECKLIST_TEMPLATE_ISSUE", `{"title":"Planung","items":["Cover","DOI"]}`)
	t.Setenv("CHECKLIST_TEMPLATE_SUBMISSION", "not json")

	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	issue := settings.Checklists["issue"]
	if issue.Title != "Planung" || len(issue.Items) != 2 {
		t.Errorf("issue checklist = %+v, want Planung with 2 items", issue)
	}

	// Invalid JSON is ignored and the default stays in place.
	if settings.Checklists["submission"].Title != "Redaktion" {
		t.Errorf("submission checklist = %+v, want default", settings.Checklists["submission"])
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("OJS_URL", "https://journals.example.com/abcd")
	t.Setenv("OJS_PASSWORD", "token")
	t.Setenv("WEKAN_URL", "https://kanban.example.com")
	t.Setenv("WEKAN_USERNAME", "admin")
	t.Setenv("WEKAN_PASSWORD", "secret")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.OJSURL != "https://journals.example.com/abcd" || creds.WekanUsername != "admin" {
		t.Errorf("LoadCredentials() = %+v", creds)
	}
}

func TestLoadCredentialsMissing(t *testing.T) {
	t.Setenv("OJS_URL", "https://journals.example.com/abcd")
	t.Setenv("OJS_PASSWORD", "token")
	t.Setenv("WEKAN_URL", "https://kanban.example.com")
	t.Setenv("WEKAN_USERNAME", "admin")
	t.Setenv("WEKAN_PASSWORD", "")

	_, err := LoadCredentials()
	if err == nil {
		t.Fatal("LoadCredentials() error = nil, want missing-variable error")
	}
	if !strings.Contains(err.Error(), "WEKAN_PASSWORD") {
		t.Errorf("error %q does not name the missing variable", err)
	}
}

func TestEnsureSettingsExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")

	if err := ensureSettingsExists(path); err != nil {
		t.Fatalf("ensureSettingsExists() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	if !strings.Contains(string(data), "board: Testboard") {
		t.Errorf("settings file lacks defaults: %s", data)
	}

	// A second call must not overwrite an existing file.
	if err := os.WriteFile(path, []byte("board: Eigenes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ensureSettingsExists(path); err != nil {
		t.Fatalf("ensureSettingsExists() error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "board: Eigenes\n" {
		t.Errorf("existing settings file was overwritten: %s", data)
	}
}
