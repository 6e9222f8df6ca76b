package tracker

import "sync"

// Point represents the x,y coordinates of the center of a tracked mask region
type Point struct {
	X, Y int
}

// Track represents a track history
type Track struct {
	points []Point
}

// Trail is the struct to keep a history of tracked mask region centers used
// for drawing a trail on the debug display
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points
	history map[int64]*Track
	sync.Mutex
}

// NewTrail returns a new trail history track instance.  Size is the number
// of most recent trails to keep and specifies the maximum length of the trail
// to maintain
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int64]*Track),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int64]*Track)
}

// Add the center of a tracked object to its history
func (t *Trail) Add(obj Object) {
	t.Lock()
	defer t.Unlock()

	track, exists := t.history[obj.ID]

	if !exists {
		track = &Track{}
		t.history[obj.ID] = track
	}

	x, y := obj.Box.Center()

	track.points = append(track.points, Point{
		X: int(x),
		Y: int(y),
	})

	// check if history is exceeded and drop oldest point
	if len(track.points) > t.size {
		track.points = track.points[1:]
	}
}

// Prune drops the history of every track not present in active
func (t *Trail) Prune(active []Object) {
	t.Lock()
	defer t.Unlock()

	keep := make(map[int64]struct{}, len(active))

	for _, obj := range active {
		keep[obj.ID] = struct{}{}
	}

	for id := range t.history {
		if _, ok := keep[id]; !ok {
			delete(t.history, id)
		}
	}
}

// GetPoints gets a copy of the point history for a specific track id
func (t *Trail) GetPoints(id int64) []Point {
	t.Lock()
	defer t.Unlock()

	if track, exists := t.history[id]; exists {
		return append([]Point(nil), track.points...)
	}

	// no history yet
	return nil
}

// Len returns the number of tracks with history
func (t *Trail) Len() int {
	t.Lock()
	defer t.Unlock()

	return len(t.history)
}
