// Package tts synthesizes narration audio from text.
//
// Backends implement Provider: OpenAI (hosted voices) and Command (a local
// engine such as espeak-ng or piper that writes audio to stdout). Chain tries
// providers in order so a hosted voice can fall back to a local one.
//
// Example usage:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice(tts.VoiceShimmer),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "cat detected with confidence 0.9")
//	// result.Audio holds encoded audio in result.Format
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio data.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration, zero when unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int // PCM only
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"     // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050"     // 22.05kHz mono PCM16 (espeak-ng, piper)
	EncodingPCM24 Encoding = "pcm_24000"     // 24kHz mono PCM16 (OpenAI "pcm")
	EncodingMP3   Encoding = "mp3_44100_128" // MP3 128kbps
	EncodingWAV   Encoding = "wav"           // RIFF container, rate in header
	EncodingOpus  Encoding = "opus"
)

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingMP3:
		return 44100
	case EncodingOpus:
		return 48000
	default:
		return 0 // Carried in the container
	}
}
