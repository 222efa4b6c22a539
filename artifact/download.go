// Package artifact fetches the model file at startup, keeps the loaded model
// available to request handlers and reloads it when the file changes.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"heartfail/logger"
	"heartfail/ml"
	"heartfail/monitoring"
)

var (
	ErrModelMissing     = errors.New("model file not found")
	ErrChecksumMismatch = errors.New("model checksum mismatch")
)

type Options struct {
	Source  string
	Path    string
	Type    string
	SHA256  string
	Timeout time.Duration
	Client  *http.Client
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Download writes source to dest. Remote sources take a single GET; anything
// else is treated as a local path and copied. When want is set the fetched
// bytes must match it before they replace dest.
func Download(ctx context.Context, client *http.Client, source, dest, want string) error {
	if source == "" {
		return errors.New("model source is empty")
	}
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var body io.ReadCloser
	if isRemote(source) {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch model: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("fetch model: unexpected status %s", resp.Status)
		}
		body = resp.Body
	} else {
		if same, _ := samePath(source, dest); same {
			return nil
		}
		file, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("open model source: %w", err)
		}
		body = file
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".model-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := VerifyChecksum(tmp.Name(), want); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

func VerifyChecksum(path, want string) error {
	if want == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return err
	}
	got := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}

// Prepare downloads the model, checks it landed on disk and loads it. A failed
// download still loads a file left at Path by an earlier run.
func Prepare(ctx context.Context, opts Options) (*ml.Model, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := Download(ctx, opts.Client, opts.Source, opts.Path, opts.SHA256)
	monitoring.ObserveFetch("model", time.Since(start), err)
	if err != nil {
		logger.Log.Warn("model download failed", zap.String("source", opts.Source), zap.Error(err))
	}

	if _, statErr := os.Stat(opts.Path); statErr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrModelMissing, opts.Path, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrModelMissing, opts.Path)
	}
	if err := VerifyChecksum(opts.Path, opts.SHA256); err != nil {
		return nil, err
	}

	model, err := ml.LoadModel(opts.Type, opts.Path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	logger.Log.Info("model loaded",
		zap.String("path", opts.Path),
		zap.String("type", model.Type),
		zap.String("version", model.Version))
	return model, nil
}
