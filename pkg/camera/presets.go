package camera

import "sort"

// Preset names.
const (
	PresetVGA    = "vga"
	PresetHD720  = "hd720"
	PresetHD1080 = "hd1080"
	PresetLowFPS = "lowfps"
)

// Presets returns all available camera presets, keyed by name.
func Presets() map[string]Config {
	return map[string]Config{
		PresetVGA:    DefaultConfig(),
		PresetHD720:  HD720Config(),
		PresetHD1080: HD1080Config(),
		PresetLowFPS: LowFPSConfig(),
	}
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, 4)
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Inference still runs at the model size, so this mostly costs capture time.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Quality = 70
	return cfg
}

// LowFPSConfig trades frame rate for CPU on small boards.
func LowFPSConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 10
	return cfg
}
