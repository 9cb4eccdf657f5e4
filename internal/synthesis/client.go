package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Provider performs the remote synthesis call.
type Provider interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
	Name() string
}

// AudioCache memoises audio by Request.Key.
type AudioCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, audio []byte) error
}

// Result is the outcome of one conversion. Synthesize never returns an
// error; failures are reported with OK false and a readable Message.
type Result struct {
	OK          bool   `json:"ok"`
	Path        string `json:"path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
	Cached      bool   `json:"cached,omitempty"`
	Message     string `json:"message,omitempty"`
}

func failed(err error) Result {
	return Result{Message: "Error in converting text to speech: " + err.Error()}
}

type Option func(*Client)

func WithCache(c AudioCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithObserver is called once per Synthesize call that reaches the provider
// or the cache.
func WithObserver(fn func(format Format, ok bool, cached bool, elapsed time.Duration)) Option {
	return func(cl *Client) { cl.observe = fn }
}

type Client struct {
	provider Provider
	cache    AudioCache
	observe  func(Format, bool, bool, time.Duration)
}

func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{provider: p}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize converts req and writes the audio to destinationPath,
// replacing any file already there. No file is written on failure.
func (c *Client) Synthesize(ctx context.Context, req Request, destinationPath string) (res Result) {
	start := time.Now()
	cached := false
	defer func() {
		if r := recover(); r != nil {
			slog.Error("synthesis panicked", "provider", c.provider.Name(), "panic", r)
			res = failed(fmt.Errorf("provider panic: %v", r))
		}
		if c.observe != nil {
			c.observe(req.Format, res.OK, cached, time.Since(start))
		}
	}()

	key := req.Key()
	var audio []byte
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("audio cache lookup failed", "error", err)
		}
		if ok {
			audio, cached = data, true
		}
	}

	if audio == nil {
		data, err := c.provider.Synthesize(ctx, req)
		if err != nil {
			slog.Error("synthesis failed",
				"provider", c.provider.Name(),
				"voice", req.Voice.Name,
				"format", req.Format,
				"error", err,
			)
			return failed(err)
		}
		audio = data
		if c.cache != nil {
			if err := c.cache.Set(ctx, key, audio); err != nil {
				slog.Warn("audio cache store failed", "error", err)
			}
		}
	}

	if err := writeFileAtomic(destinationPath, audio); err != nil {
		slog.Error("write audio failed", "path", destinationPath, "error", err)
		return failed(err)
	}

	slog.Info("audio synthesized",
		"provider", c.provider.Name(),
		"voice", req.Voice.Name,
		"format", req.Format,
		"bytes", len(audio),
		"cached", cached,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return Result{
		OK:          true,
		Path:        destinationPath,
		ContentType: req.Format.ContentType(),
		Size:        len(audio),
		Cached:      cached,
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".audio-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close audio: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod audio: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("move audio into place: %w", err)
	}
	return nil
}
