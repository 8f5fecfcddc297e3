package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sdconvert/internal/conversion"
	"sdconvert/internal/services"
	"sdconvert/internal/testsupport"
)

func TestMimeCommandSkipsConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	out, _, err := runCLI(t, []string{"mime", "part.STP", "scene.sdtf", "notes.zzz"}, missing)
	if err != nil {
		t.Fatalf("mime: %v", err)
	}
	requireContains(t, out, "model/step")
	requireContains(t, out, "model/vnd.sdtf")
	requireContains(t, out, "notes.zzz")
}

func TestConfigInitValidateShow(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	env := setupCLITestEnv(t, testsupport.WithTickets("cad-ticket-0123456789", "sdtf-ticket-0123456789"))
	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "credentials: yes")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[cad_to_sdtf]")
	if strings.Contains(out, "cad-ticket-0123456789") {
		t.Fatalf("ticket leaked in output: %s", out)
	}
}

func TestConfigValidateRejectsBadLogLevel(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"--log-level", "chatty", "config", "validate"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCheckCommandJSON(t *testing.T) {
	_, server := newFakeBackend(t)
	env := setupCLITestEnv(t, testsupport.WithEndpoint(server.URL))

	input := testsupport.WriteInput(t, env.baseDir, "scene.sdtf", "sdtf")

	out, _, err := runCLI(t, []string{"check", "--json", "sdtf-to-gltf", input, filepath.Join(env.baseDir, "scene.glb")}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var view struct {
		Mode    string `json:"mode"`
		OK      bool   `json:"ok"`
		Results []struct {
			Name   string `json:"name"`
			Passed bool   `json:"passed"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !view.OK || view.Mode != conversion.IntermediateToDisplay.Name || len(view.Results) != 4 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestCheckCommandTableReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithTickets("", ""))
	out, _, err := runCLI(t, []string{"check", "cad-to-sdtf"}, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, out, "Failed")
}

func TestInspectMarksBindableParameters(t *testing.T) {
	_, server := newFakeBackend(t)
	env := setupCLITestEnv(t, testsupport.WithEndpoint(server.URL))

	out, _, err := runCLI(t, []string{"inspect", "cad-to-sdtf", "bracket.3dm"}, env.configPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "Session s-1 (cad-to-intermediate)")
	requireContains(t, out, "Input type: model/vnd.3dm")
	requireContains(t, out, "Binds")
	requireContains(t, out, "yes")
	requireContains(t, out, "Scale")
	requireContains(t, out, "1 hidden parameter(s) omitted")
	if strings.Contains(out, "Tolerance") {
		t.Fatalf("hidden parameter listed without --all: %s", out)
	}

	out, _, err = runCLI(t, []string{"inspect", "--all", "cad-to-sdtf"}, env.configPath)
	if err != nil {
		t.Fatalf("inspect --all: %v", err)
	}
	requireContains(t, out, "Tolerance")

	out, _, err = runCLI(t, []string{"inspect", "--json", "cad-to-sdtf"}, env.configPath)
	if err != nil {
		t.Fatalf("inspect --json: %v", err)
	}
	var view struct {
		Parameters []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"parameters"`
		HiddenCount int `json:"hidden_count"`
		Outputs     []struct {
			ID string `json:"id"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(view.Parameters) != 2 || view.Parameters[0].ID != "p1" || view.Parameters[0].Kind != "file" || view.Parameters[1].ID != "p2" {
		t.Fatalf("unexpected parameters: %+v", view.Parameters)
	}
	if view.HiddenCount != 1 {
		t.Fatalf("hidden_count = %d", view.HiddenCount)
	}
	if len(view.Outputs) != 1 || view.Outputs[0].ID != "o1" {
		t.Fatalf("unexpected outputs: %+v", view.Outputs)
	}
}

func TestReportErrorDumpsUnmatchedOutputs(t *testing.T) {
	err := &conversion.NoMatchingOutputError{
		Policy: "format=sdtf",
		Outputs: []conversion.OutputSet{{
			ID:     "o1",
			Name:   "preview",
			Status: conversion.StatusSuccess,
			Items:  []conversion.ContentItem{{Format: "glb", ContentType: "model/gltf-binary"}},
		}},
		Raw: json.RawMessage(`{"o1":{"id":"o1","content":[{"format":"glb"}]}}`),
	}

	var buf bytes.Buffer
	reportError(&buf, err)
	out := buf.String()
	requireContains(t, out, "NoMatchingOutput:")
	requireContains(t, out, "Outputs returned by the service:")
	requireContains(t, out, `"format": "glb"`)
	requireContains(t, out, "model/gltf-binary")
}

func TestReportErrorPlain(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, errors.New("boom"))
	if got := buf.String(); got != "Error: boom\n" {
		t.Fatalf("reportError = %q", got)
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		"computation_error": "Computation Error",
		"success":           "Success",
		"":                  "-",
	}
	for in, want := range cases {
		if got := statusLabel(in); got != want {
			t.Errorf("statusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
