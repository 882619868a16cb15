package config

import (
	"os"
	"strconv"
)

func getEnvAsFloat(name string, defaultVal float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultVal
}

type Config struct {
	Port         string
	MusicDir     string
	Bitrate      string
	StationName  string
	MaxClients   int
	SampleRate   string
	Channels     string
	PlaylistFile string
	WebDir       string
	DJUsername   string
	DJPassword   string
	JWTSecret    string
	Timezone     string

	// CacheDir is where CacheSink spools re-encoded FLAC files, keyed by
	// content hash.
	CacheDir string
	// CoversDir is where resolved cover art is cached alongside the audio.
	CoversDir string
	// CachePrebufferBytes is read from CACHE_PREBUFFER_BYTES but is not
	// passed to any pipeline component: CacheSink publishes a track once
	// audiocache.FlacFixedHeaderLen+PkPrefixLen bytes are written, and the
	// PlaylistSource built by NewPipelineManager uses its own
	// PrebufferBytes setting.
	CachePrebufferBytes int
	// PlaylistPollIntervalMs is how often the playlist source checks for
	// newly published cache entries when idle.
	PlaylistPollIntervalMs int
	// TailRetryIntervalMs is how long a progressive reader sleeps between
	// attempts to read past the current end of a still-downloading file.
	TailRetryIntervalMs int
	// BroadcastMaxLeadSec bounds how far a streaming sink's encoder is
	// allowed to run ahead of wall-clock time before it blocks.
	BroadcastMaxLeadSec float64
	// IcyMetaInt is the default number of audio bytes between ICY
	// metadata blocks when a client requests Icy-MetaData: 1.
	IcyMetaInt int
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8000"),
		MusicDir:     getEnv("MUSIC_DIR", "./music"),
		Bitrate:      getEnv("BITRATE", "128k"),
		StationName:  getEnv("STATION_NAME", "Denpa Radio"),
		MaxClients:   getEnvAsInt("MAX_CLIENTS", 100),
		SampleRate:   getEnv("SAMPLE_RATE", "44100"),
		Channels:     getEnv("CHANNELS", "2"),
		PlaylistFile: getEnv("PLAYLIST_FILE", "./data/playlists.json"),
		WebDir:       getEnv("WEB_DIR", "./web/dist"),
		DJUsername:   getEnv("DJ_USERNAME", "dj"),
		DJPassword:   getEnv("DJ_PASSWORD", "denpa"),
		JWTSecret:    getEnv("JWT_SECRET", "change-me-in-production-please"),
		Timezone:     getEnv("TIMEZONE", ""),

		CacheDir:               getEnv("CACHE_DIR", "./data/cache"),
		CoversDir:              getEnv("COVERS_DIR", "./data/covers"),
		CachePrebufferBytes:    getEnvAsInt("CACHE_PREBUFFER_BYTES", 4096),
		PlaylistPollIntervalMs: getEnvAsInt("PLAYLIST_POLL_INTERVAL_MS", 500),
		TailRetryIntervalMs:    getEnvAsInt("TAIL_RETRY_INTERVAL_MS", 100),
		BroadcastMaxLeadSec:    getEnvAsFloat("BROADCAST_MAX_LEAD_SEC", 2.0),
		IcyMetaInt:             getEnvAsInt("ICY_METAINT", 16000),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}
