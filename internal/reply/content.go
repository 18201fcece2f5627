package reply

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent []byte

type Link struct {
	Emoji string `yaml:"emoji"`
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
}

type CommandDoc struct {
	Emoji       string `yaml:"emoji"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Content holds the static texts: links, help entries and the greeting.
// Descriptions may use {coin} and {prefix} placeholders.
type Content struct {
	LinksTitle string       `yaml:"links_title"`
	Links      []Link       `yaml:"links"`
	HelpTitle  string       `yaml:"help_title"`
	Commands   []CommandDoc `yaml:"commands"`
	Greeting   string       `yaml:"greeting"`
}

// ParseContent decodes a content document.
func ParseContent(data []byte) (Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Content{}, fmt.Errorf("parse content: %w", err)
	}
	if len(c.Commands) == 0 {
		return Content{}, fmt.Errorf("parse content: no commands listed")
	}
	return c, nil
}

// DefaultContent returns the embedded Arqma content.
func DefaultContent() Content {
	c, err := ParseContent(defaultContent)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadContent reads a content override from disk; an empty path yields the
// embedded default.
func LoadContent(path string) (Content, error) {
	if path == "" {
		return DefaultContent(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("read content: %w", err)
	}
	return ParseContent(data)
}
