// Package voices lists the speaker voices a synthesis provider offers.
package voices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-callsynth/internal/audio"
	"github.com/loqalabs/loqa-callsynth/internal/config"
)

type Voice struct {
	Gender           string   `json:"Gender" yaml:"gender"`
	ID               string   `json:"Id" yaml:"id"`
	LanguageCode     string   `json:"LanguageCode" yaml:"language_code"`
	SupportedEngines []string `json:"SupportedEngines" yaml:"supported_engines"`
}

// builtin is used when no catalog is configured.
var builtin = []Voice{
	{Gender: "Female", ID: "Joanna", LanguageCode: "en-US", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Male", ID: "Matthew", LanguageCode: "en-US", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Female", ID: "Amy", LanguageCode: "en-GB", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Male", ID: "Brian", LanguageCode: "en-GB", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Female", ID: "Lupe", LanguageCode: "es-US", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Male", ID: "Pedro", LanguageCode: "es-US", SupportedEngines: []string{"neural"}},
	{Gender: "Female", ID: "Lea", LanguageCode: "fr-FR", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Male", ID: "Remi", LanguageCode: "fr-FR", SupportedEngines: []string{"neural"}},
	{Gender: "Female", ID: "Vicki", LanguageCode: "de-DE", SupportedEngines: []string{"neural", "standard"}},
	{Gender: "Male", ID: "Daniel", LanguageCode: "de-DE", SupportedEngines: []string{"neural"}},
}

type catalogFile struct {
	Voices []Voice `yaml:"voices"`
}

// describeVoicesOutput matches the JSON printed by `aws polly describe-voices`.
type describeVoicesOutput struct {
	Voices []Voice `json:"Voices"`
}

// Load returns the configured catalog: a yaml file, the JSON output of a
// command, or the builtin list.
func Load(ctx context.Context, cfg config.VoicesConfig) ([]Voice, error) {
	switch {
	case cfg.CatalogPath != "":
		return LoadFile(cfg.CatalogPath)
	case cfg.CatalogCommand != "":
		return LoadCommand(ctx, cfg.CatalogCommand)
	default:
		out := make([]Voice, len(builtin))
		copy(out, builtin)
		return out, nil
	}
}

func LoadFile(path string) ([]Voice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse voice catalog %s: %w", path, err)
	}
	return f.Voices, nil
}

// LoadCommand runs command and decodes either a bare JSON array of voices or
// a describe-voices document.
func LoadCommand(ctx context.Context, command string) ([]Voice, error) {
	argv, err := audio.ParseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	output, err := audio.Run(ctx, argv)
	if err != nil {
		return nil, fmt.Errorf("voice catalog: %w", err)
	}
	output = bytes.TrimSpace(output)
	if len(output) > 0 && output[0] == '[' {
		var list []Voice
		if err := json.Unmarshal(output, &list); err != nil {
			return nil, fmt.Errorf("decode voice list: %w", err)
		}
		return list, nil
	}
	var doc describeVoicesOutput
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("decode voice list: %w", err)
	}
	return doc.Voices, nil
}

// Filter keeps voices whose language code matches lang, ignoring case. An
// empty lang keeps everything.
func Filter(all []Voice, lang string) []Voice {
	lang = strings.TrimSpace(lang)
	out := make([]Voice, 0, len(all))
	for _, v := range all {
		if lang == "" || strings.EqualFold(v.LanguageCode, lang) {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the voice with the given id.
func Find(all []Voice, id string) (Voice, bool) {
	for _, v := range all {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}
