package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-quicktest/qt"
	"github.com/spf13/pflag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	qt.Assert(t, qt.DeepEquals(cfg.Modules.Path, []string{"lib"}))
	qt.Assert(t, qt.IsTrue(cfg.Modules.Bundle))
	qt.Assert(t, qt.IsFalse(cfg.Modules.HotReload))
	qt.Assert(t, qt.Equals(cfg.Modules.Debounce.Duration(), 100*time.Millisecond))
	qt.Assert(t, qt.Equals(cfg.Logging.Level, "info"))
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(cfg.Modules.Path, []string{"lib"}))
}

func TestLoadTOMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modrt.toml")
	data := `
[modules]
path = ["plugins", "vendor/plugins"]
bundle = false
debounce = "250ms"

[server]
http = ":9000"

[logging]
level = "debug"
verbosity = 2
`
	qt.Assert(t, qt.IsNil(os.WriteFile(path, []byte(data), 0o644)))

	t.Setenv("MODRT_HTTP", "127.0.0.1:9100")
	t.Setenv("MODRT_HOT_RELOAD", "1")

	cfg, err := Load(path)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(cfg.Modules.Path, []string{"plugins", "vendor/plugins"}))
	qt.Assert(t, qt.IsFalse(cfg.Modules.Bundle))
	qt.Assert(t, qt.IsTrue(cfg.Modules.HotReload))
	qt.Assert(t, qt.Equals(cfg.Modules.Debounce.Duration(), 250*time.Millisecond))
	qt.Assert(t, qt.Equals(cfg.Server.HTTP, "127.0.0.1:9100"))
	qt.Assert(t, qt.Equals(cfg.Verbosity(), 2))
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modrt.toml")
	qt.Assert(t, qt.IsNil(os.WriteFile(path, []byte("[modules\n"), 0o644)))
	_, err := Load(path)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	qt.Assert(t, qt.IsNil(fs.Parse([]string{"-I", "a", "-I", "b", "--no-bundle", "-vvv"})))

	cfg := DefaultConfig()
	qt.Assert(t, qt.IsNil(cfg.ApplyFlags(fs)))
	qt.Assert(t, qt.DeepEquals(cfg.Modules.Path, []string{"a", "b", "lib"}))
	qt.Assert(t, qt.IsFalse(cfg.Modules.Bundle))
	qt.Assert(t, qt.Equals(cfg.Verbosity(), 3))
}

func TestLogVerbosity(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.SetLogOutput(&buf)

	cfg.Log(1, "hidden %d", 1)
	qt.Assert(t, qt.Equals(buf.Len(), 0))

	cfg.Log(0, "shown %d", 0)
	qt.Assert(t, qt.StringContains(buf.String(), "shown 0"))
}
