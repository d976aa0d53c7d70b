package core

import (
	"net/mail"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigFrom(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		conf := newConfigFrom("DEV", v)

		assert.Equal(t, "DEV", conf.Env)
		assert.Equal(t, "Academia", conf.AppName)
		assert.Equal(t, "postgres", conf.Database.Engine)
		assert.Equal(t, "localhost:5432", conf.Database.Address())
		assert.Equal(t, 5*time.Second, conf.Server.ShutdownTimeout)
		assert.Equal(t, "@every 10m", conf.Scheduler.SweepSchedule)
		assert.Equal(t, 256, conf.Scheduler.QueueSize)
		assert.Equal(t, mail.Address{Name: "Academia", Address: "noreply@localhost"}, conf.DefaultFromEmail())
	})

	t.Run("overrides", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		v.Set("database.engine", "memory")
		v.Set("scheduler.workers", 0)
		v.Set("scheduler.sweepSchedule", "")
		v.Set("server.shutdownTimeout", "30s")
		v.Set("defaultFromEmail", "Academia Bot <bot@academia.cd>")
		conf := newConfigFrom("TEST", v)

		assert.Equal(t, "memory", conf.Database.Engine)
		assert.Equal(t, runtime.NumCPU(), conf.Scheduler.Workers, "non-positive worker counts fall back to the CPU count")
		assert.Empty(t, conf.Scheduler.SweepSchedule)
		assert.Equal(t, 30*time.Second, conf.Server.ShutdownTimeout)
		assert.Equal(t, mail.Address{Name: "Academia Bot", Address: "bot@academia.cd"}, conf.DefaultFromEmail())
	})
}

func TestNewConfig_env(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("TEST_DATABASE_ENGINE", "memory")
	t.Setenv("TEST_SCHEDULER_QUEUESIZE", "8")

	conf := NewConfig()
	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.Equal(t, "memory", conf.Database.Engine)
	assert.Equal(t, 8, conf.Scheduler.QueueSize)
}

func TestCleanString(t *testing.T) {
	tests := []struct {
		s     string
		lower bool
		want  string
	}{
		{s: "  Algebra ", want: "Algebra"},
		{s: " Trezcool@Test.CD ", lower: true, want: "trezcool@test.cd"},
		{s: "\t\n", want: ""},
	}
	for _, tt := range tests {
		if got := CleanString(tt.s, tt.lower); got != tt.want {
			t.Errorf("CleanString(%q) = %q, want %q", tt.s, got, tt.want)
		}
	}
}
