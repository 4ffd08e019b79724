package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig は設定ファイル（TOML）の構造
// APIキーなどの秘密情報は設定ファイルでは受け付けません
type fileConfig struct {
	Chunking *struct {
		Size    *int `toml:"size"`
		Overlap *int `toml:"overlap"`
	} `toml:"chunking"`

	Embedding *struct {
		Provider          *string `toml:"provider"`
		Model             *string `toml:"model"`
		Dimension         *int    `toml:"dimension"`
		TaskType          *string `toml:"task_type"`
		OpenAIBaseURL     *string `toml:"openai_base_url"`
		OllamaHost        *string `toml:"ollama_host"`
		MaxAttempts       *int    `toml:"max_attempts"`
		BaseBackoff       *string `toml:"base_backoff"`
		MaxBackoff        *string `toml:"max_backoff"`
		RequestsPerMinute *int    `toml:"requests_per_minute"`
	} `toml:"embedding"`

	Index *struct {
		Backend     *string `toml:"backend"`
		Name        *string `toml:"name"`
		Metric      *string `toml:"metric"`
		MaxAttempts *int    `toml:"max_attempts"`
	} `toml:"index"`

	Pipeline *struct {
		BatchSize      *int `toml:"batch_size"`
		MaxBatchTokens *int `toml:"max_batch_tokens"`
		TopK           *int `toml:"top_k"`
	} `toml:"pipeline"`

	Loader *struct {
		MaxDocumentChars *int `toml:"max_document_chars"`
		MaxPDFPages      *int `toml:"max_pdf_pages"`
	} `toml:"loader"`

	Qdrant *struct {
		Host   *string `toml:"host"`
		Port   *int    `toml:"port"`
		UseTLS *bool   `toml:"use_tls"`
	} `toml:"qdrant"`

	SQLite *struct {
		Path *string `toml:"path"`
	} `toml:"sqlite"`

	Log *struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"log"`
}

// LoadFile は TOML の設定ファイルを読み込み、記載された項目だけを cfg に上書きします
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	if c := fc.Chunking; c != nil {
		set(&cfg.Chunking.Size, c.Size)
		set(&cfg.Chunking.Overlap, c.Overlap)
	}

	if e := fc.Embedding; e != nil {
		set(&cfg.Embedding.Provider, e.Provider)
		set(&cfg.Embedding.Model, e.Model)
		set(&cfg.Embedding.Dimension, e.Dimension)
		set(&cfg.Embedding.TaskType, e.TaskType)
		set(&cfg.Embedding.OpenAIBaseURL, e.OpenAIBaseURL)
		set(&cfg.Embedding.OllamaHost, e.OllamaHost)
		set(&cfg.Embedding.MaxAttempts, e.MaxAttempts)
		set(&cfg.Embedding.RequestsPerMinute, e.RequestsPerMinute)
		if err := setDuration(&cfg.Embedding.BaseBackoff, "embedding.base_backoff", e.BaseBackoff); err != nil {
			return err
		}
		if err := setDuration(&cfg.Embedding.MaxBackoff, "embedding.max_backoff", e.MaxBackoff); err != nil {
			return err
		}
	}

	if i := fc.Index; i != nil {
		set(&cfg.Index.Backend, i.Backend)
		set(&cfg.Index.Name, i.Name)
		set(&cfg.Index.Metric, i.Metric)
		set(&cfg.Index.MaxAttempts, i.MaxAttempts)
	}

	if p := fc.Pipeline; p != nil {
		set(&cfg.Pipeline.BatchSize, p.BatchSize)
		set(&cfg.Pipeline.MaxBatchTokens, p.MaxBatchTokens)
		set(&cfg.Pipeline.TopK, p.TopK)
	}

	if l := fc.Loader; l != nil {
		set(&cfg.Loader.MaxDocumentChars, l.MaxDocumentChars)
		set(&cfg.Loader.MaxPDFPages, l.MaxPDFPages)
	}

	if q := fc.Qdrant; q != nil {
		set(&cfg.Qdrant.Host, q.Host)
		set(&cfg.Qdrant.Port, q.Port)
		set(&cfg.Qdrant.UseTLS, q.UseTLS)
	}

	if s := fc.SQLite; s != nil {
		set(&cfg.SQLite.Path, s.Path)
	}

	if l := fc.Log; l != nil {
		set(&cfg.Log.Level, l.Level)
		set(&cfg.Log.Format, l.Format)
	}

	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key string, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
