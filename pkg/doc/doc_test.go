package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsAreOrdered(t *testing.T) {
	topics, err := Topics()
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "protocol", topics[0].Slug)
	assert.Equal(t, "configuration", topics[1].Slug)
	for _, topic := range topics {
		assert.NotEmpty(t, topic.Title)
		assert.NotEmpty(t, topic.Short)
		assert.Contains(t, topic.Content, "# "+topic.Title)
	}
}

func TestGet(t *testing.T) {
	topic, err := Get("protocol")
	require.NoError(t, err)
	assert.Contains(t, topic.Content, "connectionInit")

	_, err = Get("nope")
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestParseTopicErrors(t *testing.T) {
	_, err := parseTopic([]byte("# no front matter"))
	assert.Error(t, err)
	_, err = parseTopic([]byte("---\nTitle: x\n"))
	assert.Error(t, err)
	_, err = parseTopic([]byte("---\nTitle: x\n---\nbody"))
	assert.Error(t, err)

	topic, err := parseTopic([]byte("---\nTitle: X\nSlug: x\n---\n\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "body\n", topic.Content)
}
