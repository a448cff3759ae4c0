package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFilter(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogger(zapcore.AddSync(buf))
	l.SetLevelByString("warn")

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	l.Errorf("shown %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "shown 3")
	assert.Contains(t, out, "WARN")
}

func TestStringToLevel(t *testing.T) {
	assert.Equal(t, zap.WarnLevel, StringToLevel("warning"))
	assert.Equal(t, zap.WarnLevel, StringToLevel("WARN"))
	assert.Equal(t, zap.ErrorLevel, StringToLevel("error"))
	assert.Equal(t, zap.InfoLevel, StringToLevel("info"))
	assert.Equal(t, zap.DebugLevel, StringToLevel("whatever"))
}
