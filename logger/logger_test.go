package logger_test

import (
	"bytes"
	"testing"

	"github.com/ktr0731/dynpb/logger"
	"github.com/stretchr/testify/assert"
)

func TestScriptln(t *testing.T) {
	t.Run("logger must write the result of Scriptln to w, but got empty result", func(t *testing.T) {
		defer logger.Reset()
		w := new(bytes.Buffer)
		logger.SetOutput(w)
		logger.Scriptln(func() []interface{} {
			return []interface{}{"compiled", "3 files"}
		})
		assert.NotEmpty(t, w.String())
	})

	t.Run("logger must not write the result of Scriptln to w because SetOutput is not called", func(t *testing.T) {
		defer logger.Reset()
		w := new(bytes.Buffer)
		logger.Scriptln(func() []interface{} {
			return []interface{}{"cache", "hit"}
		})
		assert.Empty(t, w.String())
	})
}

func TestScriptf(t *testing.T) {
	t.Run("logger must not call f before SetOutput is called", func(t *testing.T) {
		defer logger.Reset()
		called := false
		logger.Scriptf("%s", func() []interface{} {
			called = true
			return []interface{}{"never"}
		})
		assert.False(t, called)
	})

	t.Run("logger must format the result of f with the passed format", func(t *testing.T) {
		defer logger.Reset()
		w := new(bytes.Buffer)
		logger.SetOutput(w)
		logger.Scriptf("loaded %d types", func() []interface{} {
			return []interface{}{42}
		})
		assert.Contains(t, w.String(), "loaded 42 types")
	})
}
