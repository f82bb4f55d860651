package csvlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"strings"
	"path/filepath"
	"testing"
	"time"

	"detectcam/video/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRow(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.FixedZone("X", 3600))
	row := Row(ts, process.Detection{
		ClassID:    4,
		ClassName:  "aeroplane",
		Confidence: 0.82,
		Box:        process.Box{X1: 10, Y1: 10.126, X2: 50, Y2: 50.5},
	})
	assert.Equal(t, []string{
		"2024-05-06T06:08:09.123456", "4", "aeroplane", "0.8200", "10.00", "10.13", "50.00", "50.50",
	}, row)
}

func TestWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	w, err := Create(path)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	assert.Equal(t, [][]string{Header}, readAll(t, path))

	now := time.Now()
	require.NoError(t, w.LogDetections(now, []process.Detection{
		{ClassID: 1, ClassName: "bicycle", Confidence: 0.7},
		{ClassID: 2, ClassName: "bird", Confidence: 0.65},
	}))
	require.NoError(t, w.LogDetections(now, nil))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "bicycle", rows[1][2])
	assert.Equal(t, "0.6500", rows[2][3])

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.LogDetections(now, []process.Detection{{}}), os.ErrClosed)
}

func TestCreateTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	require.NoError(t, os.WriteFile(path, []byte("old,data\n"), 0644))
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, [][]string{Header}, readAll(t, path))
}

func TestCreateBadDir(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "x.csv"))
	assert.Error(t, err)
}

// flakyFile fails the writes it is told to fail and buffers the rest.
type flakyFile struct {
	bytes.Buffer
	fail int
}

func (f *flakyFile) Write(p []byte) (int, error) {
	if f.fail > 0 {
		f.fail--
		return 0, errors.New("no space left on device")
	}
	return f.Buffer.Write(p)
}

func (f *flakyFile) Close() error { return nil }

func TestWriterRecoversAfterFailedAppend(t *testing.T) {
	out := &flakyFile{}
	w, err := newWriter("flaky.csv", out)
	require.NoError(t, err)

	now := time.Now()
	out.fail = 1
	assert.Error(t, w.LogDetections(now, []process.Detection{{ClassName: "dropped"}}))

	require.NoError(t, w.LogDetections(now, []process.Detection{{ClassName: "kept"}}))
	require.NoError(t, w.LogDetections(now, []process.Detection{{ClassName: "kept2"}}))

	rows, err := csv.NewReader(strings.NewReader(out.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "kept", rows[1][2])
	assert.Equal(t, "kept2", rows[2][2])
}
