package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.FreezeDuration != 5*time.Second {
		t.Errorf("FreezeDuration: got %v, want 5s", cfg.FreezeDuration)
	}
	if cfg.Threshold != 0.5 {
		t.Errorf("Threshold: got %v, want 0.5", cfg.Threshold)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SPOTTER_THRESHOLD", "0.65")
	t.Setenv("SPOTTER_CAPACITY", "20")
	t.Setenv("SPOTTER_FREEZE", "2500")
	t.Setenv("SPOTTER_DEVICE", "rtsp://cam/stream")
	t.Setenv("SPOTTER_MODEL_FORMAT", "yolov8")

	cfg := FromEnv()
	if cfg.ModelFormat != "yolov8" {
		t.Errorf("ModelFormat: got %q", cfg.ModelFormat)
	}
	if cfg.Threshold != 0.65 {
		t.Errorf("Threshold: got %v", cfg.Threshold)
	}
	if cfg.Capacity != 20 {
		t.Errorf("Capacity: got %d", cfg.Capacity)
	}
	if cfg.FreezeDuration != 2500*time.Millisecond {
		t.Errorf("FreezeDuration: got %v", cfg.FreezeDuration)
	}
	if cfg.Device != "rtsp://cam/stream" {
		t.Errorf("Device: got %q", cfg.Device)
	}
}

func TestValidateModelFormat(t *testing.T) {
	cfg := Default()
	cfg.ModelFormat = "retinanet"
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("expected one error, got %v", errs)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"go syntax", "3s", 3 * time.Second},
		{"milliseconds", "750", 750 * time.Millisecond},
		{"garbage falls back", "soon", time.Minute},
		{"empty falls back", "", time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SPOTTER_TEST_DURATION", tc.value)
			if got := getEnvDuration("SPOTTER_TEST_DURATION", time.Minute); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SPOTTER_PORT=9191\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides existing variables, so make sure it is unset.
	os.Unsetenv("SPOTTER_PORT")
	t.Cleanup(func() { os.Unsetenv("SPOTTER_PORT") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9191" {
		t.Errorf("Port: got %q, want 9191", cfg.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Threshold = 1.5
	cfg.Capacity = 0
	cfg.Device = ""
	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestFromEnvSpeechAndWeb(t *testing.T) {
	t.Setenv("SPOTTER_TTS_COMMAND", "piper --output_file -")
	t.Setenv("SPOTTER_CAMERA_PRESET", "hd720")
	t.Setenv("SPOTTER_STATIC_DIR", "./web")

	cfg := FromEnv()
	if cfg.TTSCommand != "piper --output_file -" {
		t.Errorf("TTSCommand: got %q", cfg.TTSCommand)
	}
	if cfg.Preset != "hd720" {
		t.Errorf("Preset: got %q", cfg.Preset)
	}
	if cfg.StaticDir != "./web" {
		t.Errorf("StaticDir: got %q", cfg.StaticDir)
	}
	if Default().TTSCommand != DefaultTTSCommand {
		t.Error("default TTS command not set")
	}
}
