package genarena

import (
	"bytes"
	"flag"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigRegisterFlags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlagsWithPrefix("arena.", fs)

	assert.Equal(t, Config{Name: DefaultName, ChunkSize: DefaultChunkSize}, cfg)

	require.NoError(t, fs.Parse([]string{"-arena.name=tracer", "-arena.chunk-size=16", "-arena.max-slots=100"}))
	assert.Equal(t, Config{Name: "tracer", ChunkSize: 16, MaxSlots: 100}, cfg)
	require.NoError(t, cfg.Validate())
}

func TestConfigYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("name: sessions\nchunk_size: 32\nmax_slots: 10\n"), &cfg))
	assert.Equal(t, Config{Name: "sessions", ChunkSize: 32, MaxSlots: 10}, cfg)
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		cfg      Config
		expected error
	}{
		"valid":              {cfg: Config{Name: "a"}},
		"negative chunk":     {cfg: Config{Name: "a", ChunkSize: -1}, expected: errInvalidChunkSize},
		"negative max slots": {cfg: Config{Name: "a", MaxSlots: -1}, expected: errInvalidMaxSlots},
		"empty name":         {cfg: Config{}, expected: errEmptyName},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.cfg.Validate())
		})
	}
}

func TestWithLoggerReportsLeaks(t *testing.T) {
	var buf bytes.Buffer
	a := NewArena[int](Config{Name: "tracer"}, WithLogger[int](log.NewLogfmtLogger(&buf)))

	_, err := a.New(1)
	require.NoError(t, err)
	h, err := a.New(2)
	require.NoError(t, err)

	assert.Equal(t, 2, a.Release(nil))
	out := buf.String()
	assert.Contains(t, out, `level=warn msg="slot leaked" arena=tracer handle=0@1 index=0`)
	assert.Contains(t, out, `level=warn msg="slot leaked" arena=tracer handle=`+h.String()+` index=1`)
	assert.Contains(t, out, `level=info msg="arena released" arena=tracer slots=2 leaked=2 reserved=0`)
}
