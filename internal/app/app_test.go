package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	root := t.TempDir()

	s := &conf.Settings{}
	s.Paths = conf.PathSettings{
		Uploads: filepath.Join(root, "uploads"),
		Outputs: filepath.Join(root, "outputs"),
		Public:  filepath.Join(root, "public"),
	}
	s.Media.FFmpegPath = "ffmpeg"
	s.Pipeline.MaxConcurrent = 2
	return s
}

func TestNew_WiresCoreComponents(t *testing.T) {
	settings := testSettings(t)

	a, err := New(t.Context(), settings, "http://localhost:3000")
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Leaderboard)
	assert.NotNil(t, a.Orchestrator)
	assert.Nil(t, a.mqttClient)
	assert.Nil(t, a.alerter)
	assert.DirExists(t, settings.Paths.Outputs)
}

func TestNew_LeaderboardReadsStore(t *testing.T) {
	a, err := New(t.Context(), testSettings(t), "http://localhost:3000")
	require.NoError(t, err)
	defer a.Close()

	now := time.Now().UTC()
	require.NoError(t, a.Store.Put(&datastore.AnalysisResult{ID: "a", CreatedAt: now, Analysis: datastore.Analysis{SpeedKmh: 40}}))
	require.NoError(t, a.Store.Put(&datastore.AnalysisResult{ID: "b", CreatedAt: now, Analysis: datastore.Analysis{SpeedKmh: 50}}))

	r, err := a.Leaderboard.Rank("a")
	require.NoError(t, err)
	require.NotNil(t, r)
	require.NotNil(t, r.MyRank)
	assert.Equal(t, 2, *r.MyRank)
	assert.Equal(t, 2, r.TotalToday)
}

func TestNew_InvalidNotificationURLDisablesAlerts(t *testing.T) {
	settings := testSettings(t)
	settings.Notification.Enabled = true
	settings.Notification.URLs = []string{"not a url"}

	a, err := New(t.Context(), settings, "http://localhost:3000")
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.alerter)
}

func TestNew_MQTTWithoutBrokerIsSkipped(t *testing.T) {
	settings := testSettings(t)
	settings.MQTT.Enabled = true

	a, err := New(t.Context(), settings, "http://localhost:3000")
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.mqttClient)
}
