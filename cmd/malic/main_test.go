package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetFlags() {
	inPath, outPath = "", ""
	printIns, printRemove, verbose = false, false, false
}

func TestMissingFlagsPrintsUsageAndExitsClean(t *testing.T) {
	resetFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected clean exit with no -in/-out, got %v", err)
	}
	if !strings.Contains(out.String(), "usage") {
		t.Errorf("expected usage text on stdout, got %q", out.String())
	}
}

func TestHelpFlagPrintsUsageAndExitsClean(t *testing.T) {
	resetFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags([]string{"-help"}))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected clean exit for -help, got %v", err)
	}
	if !strings.Contains(out.String(), "usage") {
		t.Errorf("expected usage text on stdout, got %q", out.String())
	}
}

func TestUnknownFlagIgnoredSilently(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	inFile := writeSource(t, dir, "int main() { return 1; }")
	outFile := filepath.Join(dir, "out.asm")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags([]string{"-in", inFile, "-out", outFile, "--not-a-real-flag"}))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unknown flag should be ignored, got error %v (stderr: %s)", err, errOut.String())
	}
}

func TestSemanticErrorExitsNonZeroWithDiagnostic(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	inFile := writeSource(t, dir, "int main() { return undeclaredName; }")
	outFile := filepath.Join(dir, "out.asm")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags([]string{"-in", inFile, "-out", outFile}))
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected a non-nil error for an undeclared name")
	}
	if errOut.Len() == 0 {
		t.Error("expected a diagnostic on stderr")
	}
}

func TestCompilesMinimalFunctionToAssembly(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	inFile := writeSource(t, dir, "int main() { return 42; }")
	outFile := filepath.Join(dir, "out.asm")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags([]string{"-in", inFile, "-out", outFile}))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected a successful compile, got %v (stderr: %s)", err, errOut.String())
	}

	asm, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("expected %s to be written: %v", outFile, err)
	}
	if !strings.Contains(string(asm), "main:") {
		t.Errorf("expected a main: label in the generated assembly, got:\n%s", asm)
	}
}

func TestPrintInsDumpsAbstractInstructions(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	inFile := writeSource(t, dir, "int main() { return 1 + 2; }")
	outFile := filepath.Join(dir, "out.asm")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags([]string{"-in", inFile, "-out", outFile, "--print-ins"}))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected a successful compile, got %v", err)
	}
	if !strings.Contains(errOut.String(), "main:") {
		t.Errorf("expected --print-ins to dump the function on stderr, got %q", errOut.String())
	}
}

func writeSource(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "prog.ms")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test source: %v", err)
	}
	return path
}
