package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"notedb/internal/domain"
)

// BlockConfig is the body of an embedded database block:
// "render database X in mode Y". Optional fields override the persisted
// view for this render only.
type BlockConfig struct {
	DatabaseID string          `json:"databaseId"`
	Mode       domain.ViewKind `json:"mode,omitempty"`
	ViewID     string          `json:"viewId,omitempty"`
	GroupBy    string          `json:"groupBy,omitempty"`
	DateColumn string          `json:"dateColumn,omitempty"`
	// Month is YYYY-MM.
	Month string `json:"month,omitempty"`
}

// ParseBlock decodes a block body. Comments and trailing commas are allowed.
func ParseBlock(body []byte) (BlockConfig, error) {
	var cfg BlockConfig
	std, err := hujson.Standardize(body)
	if err != nil {
		return cfg, fmt.Errorf("parse block: %w", err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return cfg, fmt.Errorf("parse block: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields that can be checked without the schema.
func (c BlockConfig) Validate() error {
	if strings.TrimSpace(c.DatabaseID) == "" {
		return errors.New("block: databaseId is required")
	}
	if c.Mode != "" && !c.Mode.Valid() {
		return fmt.Errorf("block: unknown mode %q", c.Mode)
	}
	if c.Month != "" {
		if _, _, err := ParseMonth(c.Month); err != nil {
			return fmt.Errorf("block: %w", err)
		}
	}
	return nil
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("parse month %q: %w", s, err)
	}
	return t.Year(), t.Month(), nil
}

// RenderBlock loads the block's database into s and renders it with the
// block's overrides applied.
func RenderBlock(ctx context.Context, s *Session, cfg BlockConfig) (*Rendered, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DatabaseID != s.DatabaseID() {
		return nil, fmt.Errorf("block: session is for %s, not %s", s.DatabaseID(), cfg.DatabaseID)
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	v := s.View()
	if cfg.ViewID != "" {
		schema := s.Schema()
		found, ok := schema.View(cfg.ViewID)
		if !ok {
			return nil, fmt.Errorf("view %s: %w", cfg.ViewID, domain.ErrViewNotFound)
		}
		v = *found
	}
	if cfg.Mode != "" {
		v.Kind = cfg.Mode
	}
	if cfg.GroupBy != "" {
		v.GroupBy = cfg.GroupBy
	}
	if cfg.DateColumn != "" {
		v.DateColumn = cfg.DateColumn
	}
	if cfg.Month != "" {
		year, month, _ := ParseMonth(cfg.Month)
		s.SetMonth(year, month)
	}
	return s.RenderView(ctx, v)
}
