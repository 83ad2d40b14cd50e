package config

import (
	"errors"
	"fmt"
	"strings"

	"mediasort/internal/faults"
)

// Validate ensures the configuration is usable. Every failure wraps
// faults.ErrConfigInvalid so callers can stop before touching any file.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validatePaths,
		c.validateExtensions,
		c.validateOrganize,
		c.validateLabels,
	} {
		if err := check(); err != nil {
			return faults.Wrap(faults.ErrConfigInvalid, "config", "validate", "", err)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

// ValidateSource reports whether a pass can run: the source root must be set.
func (c *Config) ValidateSource() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return faults.Wrap(faults.ErrConfigInvalid, "config", "validate", "", errors.New("paths.source_dir must be set (or pass --source)"))
	}
	return nil
}

func (c *Config) validateExtensions() error {
	if len(c.Extensions.Image)+len(c.Extensions.Video)+len(c.Extensions.Audio) == 0 {
		return errors.New("extensions: at least one media extension must be configured")
	}
	owner := make(map[string]string)
	sets := []struct {
		name   string
		values []string
	}{
		{"extensions.image", c.Extensions.Image},
		{"extensions.video", c.Extensions.Video},
		{"extensions.audio", c.Extensions.Audio},
		{"extensions.leave_in_place", c.Extensions.LeaveInPlace},
	}
	for _, set := range sets {
		for _, ext := range set.values {
			if prev, ok := owner[ext]; ok {
				return fmt.Errorf("%s: extension %q already listed in %s", set.name, ext, prev)
			}
			owner[ext] = set.name
		}
	}
	return nil
}

func (c *Config) validateOrganize() error {
	switch c.Organize.DateFallback {
	case DateFallbackMtime, DateFallbackCtime, DateFallbackAtime, DateFallbackBirth, DateFallbackNone:
	default:
		return fmt.Errorf("organize.date_fallback: unsupported value %q", c.Organize.DateFallback)
	}
	switch c.Organize.DuplicateStrategy {
	case DuplicateRename, DuplicateOverwrite, DuplicateSkip:
	default:
		return fmt.Errorf("organize.duplicate_strategy: unsupported value %q", c.Organize.DuplicateStrategy)
	}
	switch c.Organize.IdenticalCheck {
	case IdenticalHash, IdenticalMtime:
	default:
		return fmt.Errorf("organize.identical_check: unsupported value %q", c.Organize.IdenticalCheck)
	}
	return nil
}

func (c *Config) validateLabels() error {
	if strings.ContainsAny(c.Labels.DateLayout, `/\`) {
		return errors.New("labels.date_layout must produce a single path segment")
	}
	return nil
}
