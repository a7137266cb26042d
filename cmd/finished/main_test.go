package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useLocalConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	slot := filepath.Join(dir, "finishedList.json")
	t.Setenv("FINISHED_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("FINISHED_SERVER_URL", "")
	t.Setenv("FINISHED_SESSION_FILE", filepath.Join(dir, "session.yaml"))
	t.Setenv("FINISHED_LOCAL_BACKEND", "file")
	t.Setenv("FINISHED_LOCAL_PATH", slot)
	t.Setenv("LOG_LEVEL", "error")
	return slot
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	addDescription = ""
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func readSlot(t *testing.T, path string) []map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read slot: %v", err)
	}
	var items []map[string]string
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("decode slot: %v", err)
	}
	return items
}

func TestAddListAndMoveLocally(t *testing.T) {
	slot := useLocalConfig(t)

	if err := execute(t, "add", "movies", "Dune", "-d", "Villeneuve"); err != nil {
		t.Fatalf("add Dune: %v", err)
	}
	if err := execute(t, "add", "movies", "Alien"); err != nil {
		t.Fatalf("add Alien: %v", err)
	}
	if err := execute(t, "add", "books", "Hyperion"); err != nil {
		t.Fatalf("add Hyperion: %v", err)
	}
	if err := execute(t, "mv", "movies", "1", "0"); err != nil {
		t.Fatalf("mv: %v", err)
	}
	if err := execute(t, "list"); err != nil {
		t.Fatalf("list: %v", err)
	}

	items := readSlot(t, slot)
	var titles []string
	for _, item := range items {
		titles = append(titles, item["title"])
	}
	if got := strings.Join(titles, ","); got != "Alien,Dune,Hyperion" {
		t.Fatalf("stored titles = %s", got)
	}
	if items[1]["description"] != "Villeneuve" {
		t.Fatalf("description = %q", items[1]["description"])
	}
}

func TestEditAndRemoveLocally(t *testing.T) {
	slot := useLocalConfig(t)
	if err := execute(t, "add", "games", "Celeste"); err != nil {
		t.Fatal(err)
	}
	id := readSlot(t, slot)[0]["id"]

	if err := execute(t, "edit", id, "Celeste", "Classic"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := readSlot(t, slot)[0]["title"]; got != "Celeste Classic" {
		t.Fatalf("title = %q", got)
	}
	if err := execute(t, "open", id); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := execute(t, "rm", id); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if items := readSlot(t, slot); len(items) != 0 {
		t.Fatalf("expected empty list, got %v", items)
	}
}

func TestRejectsInvalidInput(t *testing.T) {
	useLocalConfig(t)
	if err := execute(t, "add", "music", "Blue Train"); err == nil {
		t.Fatal("expected unknown type to fail")
	}
	if err := execute(t, "add", "movies", strings.Repeat("x", 91)); err == nil {
		t.Fatal("expected long title to fail")
	}
	if err := execute(t, "open", "missing"); err == nil {
		t.Fatal("expected unknown id to fail")
	}
}

func TestAccountCommandsNeedServer(t *testing.T) {
	useLocalConfig(t)
	for _, cmd := range []string{"login", "signup"} {
		if err := execute(t, cmd, "--email", "a@b.c", "--password", "password123"); err == nil {
			t.Fatalf("%s without server should fail", cmd)
		}
	}
	if err := execute(t, "logout"); err == nil {
		t.Fatal("logout without server should fail")
	}
	if err := execute(t, "whoami"); err != nil {
		t.Fatalf("whoami: %v", err)
	}
}

func TestPromptPrefersFlagValue(t *testing.T) {
	stdin = bufio.NewReader(strings.NewReader("typed@example.com\n"))
	got, err := prompt("Email", "flag@example.com")
	if err != nil || got != "flag@example.com" {
		t.Fatalf("prompt = %q, %v", got, err)
	}
	got, err = prompt("Email", "")
	if err != nil || got != "typed@example.com" {
		t.Fatalf("prompt = %q, %v", got, err)
	}
}
