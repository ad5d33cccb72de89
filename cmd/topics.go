package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/topic"
)

// topicsFile is the research command's input:
//
//	topics: [ai, climate]
//	feeds:
//	  ai: [https://example.com/ai.rss]
type topicsFile struct {
	Topics []string            `yaml:"topics"`
	Feeds  map[string][]string `yaml:"feeds"`
}

// loadTopicsFile reads path. A missing or malformed file, or one listing no
// topics, is a config failure.
func loadTopicsFile(path string) (*topicsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewFailure(model.KindConfig, "read topics file "+path, err)
	}

	var tf topicsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, model.NewFailure(model.KindConfig, "parse topics file "+path, err)
	}
	tf.Topics = topic.Normalize(tf.Topics)
	if len(tf.Topics) == 0 {
		return nil, model.NewFailure(model.KindConfig, "topics file "+path+" lists no topics", nil)
	}
	return &tf, nil
}
