package clip

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dashmask "github.com/swdee/go-dashmask"
	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"gocv.io/x/gocv"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fillBuffer pushes n random 64x48 frames captured 100ms apart starting at
// epoch
func fillBuffer(n int, now time.Time) *dashmask.FrameBuffer {

	buf := dashmask.NewFrameBuffer(n, dashmask.WithBufferClock(func() time.Time { return now }))

	for i := 1; i <= n; i++ {
		img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
		gocv.RandU(&img, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 255, 255, 0))
		buf.Push(dashmask.NewFrame(img, epoch.Add(time.Duration(i)*100*time.Millisecond), uint64(i)))
	}

	return buf
}

// flickerDetector finds a face on odd frames only, the session persistence
// must keep it masked on even frames
func flickerDetector() detect.Detector {
	calls := 0
	return detect.DetectorFunc(func(img gocv.Mat) ([]detect.Detection, error) {
		calls++
		if calls%2 == 0 {
			return nil, nil
		}
		return []detect.Detection{{
			Class:      "face",
			Confidence: 0.9,
			Box:        detect.NewBBox(20, 10, 36, 26),
		}}, nil
	})
}

func TestExport(t *testing.T) {

	buf := fillBuffer(10, epoch.Add(time.Second))
	defer buf.Reset()

	dir := t.TempDir()

	exp := NewExporter(buf, flickerDetector(), mask.DefaultConfig(), nil, dir,
		WithFPS(10), WithLogger(zerolog.Nop()))

	// frames 6 to 10 lie within 0.4s of now
	res, err := exp.Export(context.Background(), 400*time.Millisecond, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, epoch.Add(600*time.Millisecond), res.Start)
	assert.Equal(t, epoch.Add(time.Second), res.End)
	assert.Equal(t, 5, res.Regions, "persisted face should be masked on every frame")

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	records, err := ReadRecords(res.MetadataPath)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.EqualValues(t, 6, records[0].Seq)
	assert.False(t, records[0].Regions[0].Persisted)
	assert.True(t, records[1].Regions[0].Persisted)
	assert.Greater(t, records[0].Coverage, 0.0)

	// frames are released back once the export finishes
	latest := buf.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Refs())
	latest.Release()
}

func TestExportNoFrames(t *testing.T) {

	buf := fillBuffer(3, epoch.Add(time.Hour))
	defer buf.Reset()

	exp := NewExporter(buf, nil, mask.DefaultConfig(), nil, t.TempDir(),
		WithLogger(zerolog.Nop()))

	_, err := exp.Export(context.Background(), time.Second, time.Second)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestExportCancelled(t *testing.T) {

	buf := fillBuffer(3, epoch.Add(time.Second))
	defer buf.Reset()

	dir := t.TempDir()

	exp := NewExporter(buf, nil, mask.DefaultConfig(), nil, dir,
		WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exp.Export(ctx, time.Minute, 0)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial clip should be removed")
}

func TestExportFaceEmbeddings(t *testing.T) {

	buf := fillBuffer(2, epoch.Add(200*time.Millisecond))
	defer buf.Reset()

	det := detect.DetectorFunc(func(img gocv.Mat) ([]detect.Detection, error) {
		return []detect.Detection{
			{
				Class:      "face",
				Confidence: 0.9,
				Box:        detect.NewBBox(20, 10, 36, 26),
				Payload:    &detect.FacePayload{Embedding: []float32{0.5, -1.25, 2}},
			},
			{
				// not a redacted class, its embedding is not exported
				Class:      "car",
				Confidence: 0.8,
				Box:        detect.NewBBox(0, 0, 10, 10),
				Payload:    &detect.FacePayload{Embedding: []float32{1}},
			},
			{
				// face without an embedding
				Class:      "face",
				Confidence: 0.7,
				Box:        detect.NewBBox(40, 30, 60, 46),
				Payload:    &detect.FacePayload{},
			},
		}, nil
	})

	exp := NewExporter(buf, det, mask.DefaultConfig(), nil, t.TempDir(),
		WithLogger(zerolog.Nop()))

	res, err := exp.Export(context.Background(), time.Second, 0)
	require.NoError(t, err)

	records, err := ReadRecords(res.MetadataPath)
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, rec := range records {
		require.Len(t, rec.FaceEmbeddings, 1)
		assert.Equal(t, []float32{0.5, -1.25, 2}, detect.ExpandEmbedding(rec.FaceEmbeddings[0]))
	}
}

func TestExportRecordsFailureRemovesClip(t *testing.T) {

	buf := fillBuffer(3, epoch.Add(time.Second))
	defer buf.Reset()

	dir := t.TempDir()

	exp := NewExporter(buf, nil, mask.DefaultConfig(), nil, dir,
		WithLogger(zerolog.Nop()))

	exp.saveRecords = func(path string, records []FrameRecord) error {
		require.NoError(t, os.WriteFile(path, []byte("["), 0o644))
		return errors.New("disk full")
	}

	_, err := exp.Export(context.Background(), time.Minute, 0)
	assert.EqualError(t, err, "disk full")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "clip without audit records should be removed")
}
