package docstore_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/jsondoc/docstore"
)

func Test_LoadConfigFile_Parses_JSONC_With_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.jsonc")

	content := `{
		// root directory for the store
		"root": "/data/store",
		"indent": 4,
		"enableIndexes": true,
		"indexes": {
			"note": ["status"],
		},
	}`

	if err := writeRaw(path, content); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := docstore.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load config file: %v", err)
	}

	if cfg.Root != "/data/store" || cfg.Indent != 4 || !cfg.EnableIndexes {
		t.Fatalf("got %+v, want root/indent/enableIndexes populated", cfg)
	}

	if len(cfg.Indexes["note"]) != 1 || cfg.Indexes["note"][0] != "status" {
		t.Fatalf("indexes = %v, want note:[status]", cfg.Indexes)
	}
}

func Test_LoadConfigFile_Returns_Error_For_Missing_File(t *testing.T) {
	t.Parallel()

	_, err := docstore.LoadConfigFile(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
