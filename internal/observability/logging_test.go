package observability

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsHookKeepsExplicitFields(t *testing.T) {
	hook := &fieldsHook{fields: logrus.Fields{"app": "nsoauth", "stage": "default"}}
	entry := logrus.NewEntry(logrus.New()).WithField("stage", "game_login")

	require.NoError(t, hook.Fire(entry))
	assert.Equal(t, "nsoauth", entry.Data["app"])
	assert.Equal(t, "game_login", entry.Data["stage"])
	assert.Equal(t, logrus.AllLevels, hook.Levels())
}
