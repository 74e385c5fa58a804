package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// asmCase is one golden end-to-end case: an M* source compiled through the
// full pipeline, with substring assertions on the generated NASM text.
type asmCase struct {
	Name      string   `yaml:"name"`
	Input     string   `yaml:"input"`
	Expect    []string `yaml:"expect"`
	ExpectNot []string `yaml:"expect_not"`
	Skip      string   `yaml:"skip,omitempty"`
}

type asmCaseFile struct {
	Tests []asmCase `yaml:"tests"`
}

func TestE2EGeneratedAssembly(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "e2e_asm.yaml"))
	if err != nil {
		t.Fatalf("reading test spec: %v", err)
	}
	var spec asmCaseFile
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		t.Fatalf("parsing test spec: %v", err)
	}
	if len(spec.Tests) == 0 {
		t.Fatal("no test cases in e2e_asm.yaml")
	}

	for _, tc := range spec.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			resetFlags()
			dir := t.TempDir()
			inFile := writeSource(t, dir, tc.Input)
			outFile := filepath.Join(dir, "out.asm")

			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(normalizeFlags([]string{"-in", inFile, "-out", outFile}))
			if err := cmd.Execute(); err != nil {
				t.Fatalf("compile failed: %v (stderr: %s)", err, errOut.String())
			}

			asmBytes, err := os.ReadFile(outFile)
			if err != nil {
				t.Fatalf("reading generated assembly: %v", err)
			}
			asm := string(asmBytes)
			for _, want := range tc.Expect {
				if !strings.Contains(asm, want) {
					t.Errorf("generated assembly missing %q:\n%s", want, asm)
				}
			}
			for _, not := range tc.ExpectNot {
				if strings.Contains(asm, not) {
					t.Errorf("generated assembly must not contain %q:\n%s", not, asm)
				}
			}
		})
	}
}
