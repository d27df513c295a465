package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindRoot(t *testing.T) {
	tmp := t.TempDir()

	repoDir := filepath.Join(tmp, "site")
	if err := os.MkdirAll(filepath.Join(repoDir, ".strata"), 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(repoDir, "documents", "landing")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	typesOnly := filepath.Join(tmp, "handmade")
	if err := os.MkdirAll(filepath.Join(typesOnly, "types"), 0o755); err != nil {
		t.Fatal(err)
	}

	// A file named like the marker does not count.
	fake := filepath.Join(tmp, "fake")
	if err := os.MkdirAll(fake, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fake, ".strata"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		startPath string
		wantRoot  string
		wantErr   bool
	}{
		{name: "at root", startPath: repoDir, wantRoot: repoDir},
		{name: "nested", startPath: nested, wantRoot: repoDir},
		{name: "types directory marker", startPath: typesOnly, wantRoot: typesOnly},
		{name: "marker file ignored", startPath: fake, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindRoot(tt.startPath)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindRoot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && filepath.Clean(got) != filepath.Clean(tt.wantRoot) {
				t.Errorf("FindRoot() = %v, want %v", got, tt.wantRoot)
			}
		})
	}
}

func TestResolveRepositoryPath(t *testing.T) {
	inTemp := filepath.Join(os.TempDir(), "strata-case")
	tests := []struct {
		name      string
		path      string
		forceTemp bool
		want      string
	}{
		{name: "untouched", path: "site", want: "site"},
		{name: "empty is current directory", path: "", want: "."},
		{name: "relocated", path: "/srv/site", forceTemp: true, want: filepath.Join(os.TempDir(), "strata-dev", "site")},
		{name: "already temporary", path: inTemp, forceTemp: true, want: inTemp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRepositoryPath(tt.path, tt.forceTemp); got != tt.want {
				t.Errorf("ResolveRepositoryPath() = %v, want %v", got, tt.want)
			}
		})
	}
}
