package main

import (
	"errors"
	"strings"

	"github.com/theimaginaryfoundation/diary-lens/augment"
	"github.com/theimaginaryfoundation/diary-lens/llm"
)

type Config struct {
	Text        string
	InPath      string
	Orientation string
	Tone        string
	Method      string
	Value       string

	Model   string
	APIKey  string
	BaseURL string
	Retries int

	OrientationsPath string
	TonesPath        string

	OutPath      string
	Pretty       bool
	Trace        bool
	StrictQuotes bool
	Render       string
	List         bool
}

func (c Config) Validate() error {
	if c.List {
		return nil
	}
	if c.Text == "" && c.InPath == "" {
		return errors.New("missing -text or -in")
	}
	if c.Text != "" && c.InPath != "" {
		return errors.New("-text and -in are mutually exclusive")
	}
	if strings.TrimSpace(c.Orientation) == "" {
		return errors.New("missing -orientation")
	}
	if strings.TrimSpace(c.Tone) == "" {
		return errors.New("missing -tone")
	}
	if _, err := augment.ParseMethod(c.Method); err != nil {
		return err
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Retries < 0 {
		return errors.New("retries must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Method:  string(augment.MethodPerspective),
		Model:   llm.DefaultModel,
		Retries: 1,
		Render:  "auto",
	}
}
