// Package doc holds the help topics shipped with the binary.
package doc

import (
	"bytes"
	"embed"
	"io/fs"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed topics/*.md
var docFS embed.FS

var ErrUnknownTopic = errors.New("unknown help topic")

type Topic struct {
	Title string `yaml:"Title"`
	Slug  string `yaml:"Slug"`
	Short string `yaml:"Short"`
	Order int    `yaml:"Order"`

	Content string `yaml:"-"`
}

var frontMatterDelimiter = []byte("---\n")

func parseTopic(b []byte) (Topic, error) {
	var t Topic
	if !bytes.HasPrefix(b, frontMatterDelimiter) {
		return t, errors.New("missing front matter")
	}
	rest := b[len(frontMatterDelimiter):]
	end := bytes.Index(rest, frontMatterDelimiter)
	if end < 0 {
		return t, errors.New("unterminated front matter")
	}
	if err := yaml.Unmarshal(rest[:end], &t); err != nil {
		return t, errors.Wrap(err, "invalid front matter")
	}
	if t.Slug == "" {
		return t, errors.New("front matter has no Slug")
	}
	t.Content = string(bytes.TrimLeft(rest[end+len(frontMatterDelimiter):], "\n"))
	return t, nil
}

// Topics returns every topic ordered by Order, then slug.
func Topics() ([]Topic, error) {
	paths, err := fs.Glob(docFS, "topics/*.md")
	if err != nil {
		return nil, err
	}

	var ret []Topic
	for _, p := range paths {
		b, err := docFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		t, err := parseTopic(b)
		if err != nil {
			return nil, errors.Wrap(err, p)
		}
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Order != ret[j].Order {
			return ret[i].Order < ret[j].Order
		}
		return ret[i].Slug < ret[j].Slug
	})
	return ret, nil
}

func Get(slug string) (Topic, error) {
	topics, err := Topics()
	if err != nil {
		return Topic{}, err
	}
	for _, t := range topics {
		if t.Slug == slug {
			return t, nil
		}
	}
	return Topic{}, errors.Wrap(ErrUnknownTopic, slug)
}
