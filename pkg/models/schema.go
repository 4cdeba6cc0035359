package models

import "regexp"

type SchemaType string

const (
	SchemaHTML SchemaType = "html"
	SchemaFeed SchemaType = "feed"
)

// FieldSelector addresses one article field: a CSS selector plus an optional
// attribute to read instead of the matched node's text.
type FieldSelector struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
}

func (f FieldSelector) Empty() bool {
	return f.Selector == ""
}

// SiteSchema describes how to extract articles from pages of one site.
// Schemas are loaded at startup, validated once, and read-only afterwards,
// so all workers share them without locking.
//
// A schema with Item set treats matched pages as listings: each container
// matching Item yields one record through the field selectors. Without Item
// the whole page yields a single record. Follow names another schema to
// enqueue each extracted link under, turning listings into frontiers for
// article pages.
type SiteSchema struct {
	Name       string        `yaml:"name"`
	URLPattern string        `yaml:"url_pattern"`
	Type       SchemaType    `yaml:"type,omitempty"`
	Render     bool          `yaml:"render,omitempty"`
	Item       string        `yaml:"item,omitempty"`
	Title      FieldSelector `yaml:"title,omitempty"`
	Summary    FieldSelector `yaml:"summary,omitempty"`
	Date       FieldSelector `yaml:"date,omitempty"`
	Link       FieldSelector `yaml:"link,omitempty"`
	Follow     string        `yaml:"follow,omitempty"`

	pattern *regexp.Regexp
}

// Compile caches the URL pattern. Config validation calls it before the
// schema is shared; Matches reports false until it has run.
func (s *SiteSchema) Compile() error {
	re, err := regexp.Compile(s.URLPattern)
	if err != nil {
		return err
	}
	s.pattern = re
	return nil
}

func (s *SiteSchema) Matches(url string) bool {
	return s.pattern != nil && s.pattern.MatchString(url)
}
