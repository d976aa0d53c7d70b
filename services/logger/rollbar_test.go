package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

func TestRollbarLogger(t *testing.T) {
	out := new(bytes.Buffer)
	conf := &core.Config{Env: "TEST", TestMode: true}
	logger := NewRollbarLogger(log.New(out, "", 0), conf)

	logger.Debug("not printed")
	logger.Info("exam cancelled", map[string]interface{}{"exam": "e1", "by": "teacher"}, user.User{ID: "u1"})
	logger.Error("auto-finishing exam", errors.New("connection reset"))

	lines := out.String()
	assert.NotContains(t, lines, "not printed")
	assert.Contains(t, lines, "INFO exam cancelled by=teacher exam=e1 user=u1\n")
	assert.Contains(t, lines, "ERROR auto-finishing exam\nconnection reset\n")

	out.Reset()
	conf.Debug = true
	NewRollbarLogger(log.New(out, "", 0), conf).Debug("printed")
	assert.Equal(t, "DEBUG printed\n", out.String())
}
