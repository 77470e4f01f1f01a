package moderation

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/modguard/modguard/resources"
)

// WordList is the banned vocabulary. Matching is case-insensitive substring,
// so a list entry flags the word inside any longer message.
type WordList struct {
	words []string
}

func LoadWordList(path string) (*WordList, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = resources.FS.ReadFile("badwords.yml")
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read banned words")
	}

	var doc struct {
		Words []string `yaml:"words"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse banned words")
	}

	words := make([]string, 0, len(doc.Words))
	for _, word := range doc.Words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		words = append(words, word)
	}
	return &WordList{words: words}, nil
}

func NewWordList(words ...string) *WordList {
	list := &WordList{words: make([]string, 0, len(words))}
	for _, word := range words {
		list.words = append(list.words, strings.ToLower(word))
	}
	return list
}

func (w *WordList) Match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, word := range w.words {
		if strings.Contains(lowered, word) {
			return word, true
		}
	}
	return "", false
}

func (w *WordList) Len() int {
	return len(w.words)
}
