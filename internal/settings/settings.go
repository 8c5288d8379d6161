// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package settings loads and validates the settings.yaml of a review project.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/review-engine/pkg/types"
)

// FileName is the settings file expected at the project root.
const FileName = "settings.yaml"

var criterionName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Criterion names are embedded in the screening_criteria field, so they
	// must not contain the "=" and ";" separators.
	_ = validate.RegisterValidation("criterion", func(fl validator.FieldLevel) bool {
		return criterionName.MatchString(fl.Field().String())
	})
}

// Default returns settings for a project with no settings file.
func Default() types.Settings {
	return types.Settings{
		Project: types.ProjectConfig{
			RecordsFile: "records.bib",
			StatusFile:  "status.yaml",
			SearchDir:   "search",
		},
		Check: types.CheckConfig{
			TransitionPolicy: types.TransitionWarn,
			ScanIgnore:       []string{".git", "report.log", ".pre-commit-config.yaml"},
			TextFormats:      []string{".txt", ".csv", ".md", ".bib", ".yaml"},
		},
		Ledger: types.LedgerConfig{
			Enabled: true,
			Path:    filepath.Join(".review", "ledger.db"),
		},
	}
}

// Load reads settings.yaml from root, fills defaults for omitted values and
// validates the result. A missing file yields Default().
func Load(root string) (types.Settings, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s := Default()
			return s, Validate(s)
		}
		return types.Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes settings YAML on top of Default() and validates it.
func Parse(data []byte) (types.Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return types.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	applyDefaults(&s)
	if err := Validate(s); err != nil {
		return types.Settings{}, err
	}
	return s, nil
}

// applyDefaults restores defaults the YAML explicitly emptied.
func applyDefaults(s *types.Settings) {
	d := Default()
	if s.Project.RecordsFile == "" {
		s.Project.RecordsFile = d.Project.RecordsFile
	}
	if s.Project.StatusFile == "" {
		s.Project.StatusFile = d.Project.StatusFile
	}
	if s.Project.SearchDir == "" {
		s.Project.SearchDir = d.Project.SearchDir
	}
	if s.Check.TransitionPolicy == "" {
		s.Check.TransitionPolicy = d.Check.TransitionPolicy
	}
	if s.Check.TextFormats == nil {
		s.Check.TextFormats = d.Check.TextFormats
	}
	if s.Check.ScanIgnore == nil {
		s.Check.ScanIgnore = d.Check.ScanIgnore
	}
	if s.Ledger.Path == "" {
		s.Ledger.Path = d.Ledger.Path
	}
}

// Validate checks s against its struct constraints and reports every
// failing field at once.
func Validate(s types.Settings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating settings: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return &InvalidError{Problems: msgs}
}

// InvalidError reports settings that failed validation.
type InvalidError struct {
	Problems []string
}

func (e *InvalidError) Error() string {
	return "invalid settings: " + strings.Join(e.Problems, "; ")
}

// Save writes s to root/settings.yaml.
func Save(root string, s types.Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return os.WriteFile(filepath.Join(root, FileName), data, 0o644)
}
